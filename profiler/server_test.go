package profiler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/profiler"
)

func TestServerStartIfEnabled(t *testing.T) {
	tests := []struct {
		name          string
		enable        bool
		expectRunning bool
	}{
		{name: "profiler disabled", enable: false},
		{name: "profiler enabled", enable: true, expectRunning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := t.Context()
			cfg := &config.ConfigurationDefault{ProfilerEnable: tt.enable, ProfilerPortAddr: "127.0.0.1:0"}
			server := profiler.NewServer()

			require.NoError(t, server.StartIfEnabled(ctx, cfg))
			require.Equal(t, tt.expectRunning, server.IsRunning())

			if tt.expectRunning {
				resp, err := http.Get("http://" + server.Addr() + "/debug/pprof/")
				require.NoError(t, err)
				defer resp.Body.Close()
				require.Equal(t, http.StatusOK, resp.StatusCode)
			}

			require.NoError(t, server.Stop(ctx))
			require.False(t, server.IsRunning())
			require.Empty(t, server.Addr())
		})
	}
}

func TestServerStopWhenNotRunning(t *testing.T) {
	require.NoError(t, profiler.NewServer().Stop(t.Context()))
}
