package internal_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/pitabwire/util"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/internal"
)

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.ConfigurationDefault{LogLevel: "warn", LogTimeFormat: "15:04"}

	log := internal.NewLogger(context.Background(), cfg, util.WithLogOutput(&buf))
	log.Info("hidden")
	log.Warn("visible")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "visible")
}

func TestNewLoggerWithoutConfig(t *testing.T) {
	log := internal.NewLogger(context.Background(), nil)
	require.NotNil(t, log)
}
