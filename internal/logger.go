package internal

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/config"
)

// NewLogger builds the context logger from the logging section of the configuration.
func NewLogger(ctx context.Context, cfg config.ConfigurationLogLevel, opts ...util.Option) *util.LogEntry {
	if cfg != nil {
		logLevel, err := util.ParseLevel(cfg.LoggingLevel())
		if err == nil {
			opts = append(opts, util.WithLogLevel(logLevel))
		}
		opts = append(opts,
			util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
			util.WithLogNoColor(!cfg.LoggingColored()))
		if cfg.LoggingShowStackTrace() {
			opts = append(opts, util.WithLogStackTrace())
		}
	}

	return util.NewLogger(ctx, opts...)
}
