package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestContextHelpersAndKeyString() {
	ctx := context.Background()
	cfg := ConfigurationDefault{ServiceName: "svc"}

	s.Equal("autotranslate/config/configurationKey", ctxKeyConfiguration.String())

	ctx = ToContext(ctx, cfg)
	fromCtx := FromContext[ConfigurationDefault](ctx)
	s.Equal("svc", fromCtx.ServiceName)

	missing := FromContext[*ConfigurationDefault](context.Background())
	s.Nil(missing)
}

func (s *ConfigSuite) TestFromEnvDefaults() {
	cfg, err := FromEnv[ConfigurationDefault]()
	s.Require().NoError(err)

	s.Equal("background", cfg.ContextID())
	s.Equal("mem://autotranslate.background.requests", cfg.QueueURL("background.requests"))
	s.Equal(10*time.Second, cfg.RequestTimeout())
	s.Equal(500*time.Millisecond, cfg.ProbeTimeout())
	s.Equal(100*time.Millisecond, cfg.InitialBackoff())
	s.Equal(2*time.Second, cfg.MaxBackoff())
	s.Equal(uint(8), cfg.MaxAttempts())
	s.Equal("mem://", cfg.GetStorageURI())
	s.Equal([]string{"en"}, cfg.GetMessageLanguages())
}

func (s *ConfigSuite) TestFromEnvOverrides() {
	s.T().Setenv("CONTEXT_ID", "page-42")
	s.T().Setenv("QUEUE_URL_PREFIX", "nats://autotranslate.")
	s.T().Setenv("READINESS_MAX_ATTEMPTS", "3")
	s.T().Setenv("REQUEST_TIMEOUT", "250ms")
	s.T().Setenv("STORAGE_URI", "redis://localhost:6379/0")
	s.T().Setenv("MESSAGE_LANGUAGES", "en,fr")

	var cfg ConfigurationDefault
	s.Require().NoError(FillEnv(&cfg))

	s.Equal("page-42", cfg.ContextID())
	s.Equal("nats://autotranslate.broadcast", cfg.QueueURL("broadcast"))
	s.Equal(uint(3), cfg.MaxAttempts())
	s.Equal(250*time.Millisecond, cfg.RequestTimeout())
	s.Equal("redis://localhost:6379/0", cfg.GetStorageURI())
	s.Equal([]string{"en", "fr"}, cfg.GetMessageLanguages())
}

func (s *ConfigSuite) TestFallbacksForBlankValues() {
	cfg := &ConfigurationDefault{
		WorkerPoolExpiryDuration:   "not-a-duration",
		RequestTimeoutValue:        "",
		ReadinessProbeTimeoutValue: "bogus",
		TranslatorEndpoint:         "https://translate.example.com/",
	}

	s.Equal(time.Second, cfg.GetExpiryDuration())
	s.Equal(10*time.Second, cfg.RequestTimeout())
	s.Equal(500*time.Millisecond, cfg.ProbeTimeout())
	s.Equal(uint(1), cfg.MaxAttempts())
	s.Equal("background", cfg.ContextID())
	s.Equal("mem://autotranslate.x", cfg.QueueURL("x"))
	s.Equal("autotranslate", cfg.GetStorageBucket())
	s.Equal("https://translate.example.com", cfg.GetTranslatorEndpoint())
}

func (s *ConfigSuite) TestLoggingGetters() {
	cfg := &ConfigurationDefault{
		LogLevel:          "trace",
		LogFormat:         "json",
		LogTimeFormat:     time.RFC3339,
		LogColored:        true,
		LogShowStackTrace: true,
	}

	s.Equal("trace", cfg.LoggingLevel())
	s.Equal("json", cfg.LoggingFormat())
	s.Equal(time.RFC3339, cfg.LoggingTimeFormat())
	s.True(cfg.LoggingColored())
	s.True(cfg.LoggingShowStackTrace())
	s.True(cfg.LoggingLevelIsDebug())
}
