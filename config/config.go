package config

import (
	"context"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type contextKey string

func (c contextKey) String() string {
	return "autotranslate/config/" + string(c)
}

const ctxKeyConfiguration = contextKey("configurationKey")

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

type ConfigurationDefault struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"`
	LogFormat     string `envDefault:"info"                      env:"LOG_FORMAT"      yaml:"log_format"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"`

	LogShowStackTrace bool `envDefault:"false" env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace"`

	OpenTelemetryDisable    bool    `envDefault:"false" env:"OPENTELEMETRY_DISABLE"        yaml:"opentelemetry_disable"`
	OpenTelemetryTraceRatio float64 `envDefault:"0.1"   env:"OPENTELEMETRY_TRACE_ID_RATIO" yaml:"opentelemetry_trace_id_ratio"`

	ServiceName        string `envDefault:"autotranslate" env:"SERVICE_NAME"        yaml:"service_name"`
	ServiceEnvironment string `envDefault:""              env:"SERVICE_ENVIRONMENT" yaml:"service_environment"`
	ServiceVersion     string `envDefault:""              env:"SERVICE_VERSION"     yaml:"service_version"`

	// Worker pool settings
	WorkerPoolCPUFactorForWorkerCount int    `envDefault:"10"  env:"WORKER_POOL_CPU_FACTOR_FOR_WORKER_COUNT" yaml:"worker_pool_cpu_factor_for_worker_count"`
	WorkerPoolCapacity                int    `envDefault:"100" env:"WORKER_POOL_CAPACITY"                    yaml:"worker_pool_capacity"`
	WorkerPoolCount                   int    `envDefault:"1"   env:"WORKER_POOL_COUNT"                       yaml:"worker_pool_count"`
	WorkerPoolExpiryDuration          string `envDefault:"1s"  env:"WORKER_POOL_EXPIRY_DURATION"             yaml:"worker_pool_expiry_duration"`

	ContextIDValue      string `envDefault:"background"           env:"CONTEXT_ID"       yaml:"context_id"`
	QueueURLPrefix      string `envDefault:"mem://autotranslate." env:"QUEUE_URL_PREFIX" yaml:"queue_url_prefix"`
	RequestTimeoutValue string `envDefault:"10s"                  env:"REQUEST_TIMEOUT"  yaml:"request_timeout"`

	ReadinessProbeTimeoutValue   string `envDefault:"500ms" env:"READINESS_PROBE_TIMEOUT"   yaml:"readiness_probe_timeout"`
	ReadinessInitialBackoffValue string `envDefault:"100ms" env:"READINESS_INITIAL_BACKOFF" yaml:"readiness_initial_backoff"`
	ReadinessMaxBackoffValue     string `envDefault:"2s"    env:"READINESS_MAX_BACKOFF"     yaml:"readiness_max_backoff"`
	ReadinessMaxAttemptsValue    uint   `envDefault:"8"     env:"READINESS_MAX_ATTEMPTS"    yaml:"readiness_max_attempts"`

	StorageURI         string `envDefault:"mem://"        env:"STORAGE_URI"          yaml:"storage_uri"`
	StorageBucket      string `envDefault:"autotranslate" env:"STORAGE_BUCKET"       yaml:"storage_bucket"`
	HistoryDatabaseURL string `envDefault:""              env:"HISTORY_DATABASE_URL" yaml:"history_database_url"`

	SettingsDefaultsFile string `envDefault:"" env:"SETTINGS_DEFAULTS_FILE" yaml:"settings_defaults_file"`

	TranslatorEndpoint string   `envDefault:"https://libretranslate.com" env:"TRANSLATOR_ENDPOINT" yaml:"translator_endpoint"`
	TranslatorAPIKey   string   `envDefault:""                           env:"TRANSLATOR_API_KEY"  yaml:"translator_api_key"`
	MessageLanguages   []string `envDefault:"en"                         env:"MESSAGE_LANGUAGES"   yaml:"message_languages"`

	// Provider calls per second and burst, per translator module. Zero disables throttling.
	TranslatorRequestsPerSecond float64 `envDefault:"0" env:"TRANSLATOR_REQUESTS_PER_SECOND" yaml:"translator_requests_per_second"`
	TranslatorBurst             int     `envDefault:"1" env:"TRANSLATOR_BURST"               yaml:"translator_burst"`

	ProfilerEnable   bool   `envDefault:"false" env:"PROFILER_ENABLE"    yaml:"profiler_enable"`
	ProfilerPortAddr string `envDefault:":6060" env:"PROFILER_PORT_ADDR" yaml:"profiler_port_addr"`
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return fallback
}

type ConfigurationService interface {
	Name() string
	Environment() string
	Version() string
}

var _ ConfigurationService = new(ConfigurationDefault)

func (c *ConfigurationDefault) Name() string {
	return c.ServiceName
}
func (c *ConfigurationDefault) Environment() string {
	return c.ServiceEnvironment
}
func (c *ConfigurationDefault) Version() string {
	return c.ServiceVersion
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingFormat() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string {
	return c.LogLevel
}

func (c *ConfigurationDefault) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *ConfigurationDefault) LoggingFormat() string {
	return c.LogFormat
}

func (c *ConfigurationDefault) LoggingColored() bool {
	return c.LogColored
}

func (c *ConfigurationDefault) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *ConfigurationDefault) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTelemetry interface {
	DisableOpenTelemetry() bool
	SamplingRatio() float64
}

var _ ConfigurationTelemetry = new(ConfigurationDefault)

func (c *ConfigurationDefault) DisableOpenTelemetry() bool {
	return c.OpenTelemetryDisable
}

func (c *ConfigurationDefault) SamplingRatio() float64 {
	return c.OpenTelemetryTraceRatio
}

type ConfigurationWorkerPool interface {
	GetCPUFactor() int
	GetCapacity() int
	GetCount() int
	GetExpiryDuration() time.Duration
}

var _ ConfigurationWorkerPool = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetCPUFactor() int {
	return c.WorkerPoolCPUFactorForWorkerCount
}

func (c *ConfigurationDefault) GetCapacity() int {
	return c.WorkerPoolCapacity
}

func (c *ConfigurationDefault) GetCount() int {
	return c.WorkerPoolCount
}

func (c *ConfigurationDefault) GetExpiryDuration() time.Duration {
	return parseDuration(c.WorkerPoolExpiryDuration, time.Second)
}

// ConfigurationMessaging describes where a context listens and how long it waits for replies.
type ConfigurationMessaging interface {
	ContextID() string
	QueueURL(name string) string
	RequestTimeout() time.Duration
}

var _ ConfigurationMessaging = new(ConfigurationDefault)

func (c *ConfigurationDefault) ContextID() string {
	if strings.TrimSpace(c.ContextIDValue) == "" {
		return "background"
	}
	return c.ContextIDValue
}

func (c *ConfigurationDefault) QueueURL(name string) string {
	prefix := c.QueueURLPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = "mem://autotranslate."
	}
	return prefix + name
}

func (c *ConfigurationDefault) RequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeoutValue, 10*time.Second)
}

type ConfigurationReadiness interface {
	ProbeTimeout() time.Duration
	InitialBackoff() time.Duration
	MaxBackoff() time.Duration
	MaxAttempts() uint
}

var _ ConfigurationReadiness = new(ConfigurationDefault)

func (c *ConfigurationDefault) ProbeTimeout() time.Duration {
	return parseDuration(c.ReadinessProbeTimeoutValue, 500*time.Millisecond)
}

func (c *ConfigurationDefault) InitialBackoff() time.Duration {
	return parseDuration(c.ReadinessInitialBackoffValue, 100*time.Millisecond)
}

func (c *ConfigurationDefault) MaxBackoff() time.Duration {
	return parseDuration(c.ReadinessMaxBackoffValue, 2*time.Second)
}

func (c *ConfigurationDefault) MaxAttempts() uint {
	if c.ReadinessMaxAttemptsValue == 0 {
		return 1
	}
	return c.ReadinessMaxAttemptsValue
}

type ConfigurationStorage interface {
	GetStorageURI() string
	GetStorageBucket() string
	GetHistoryDatabaseURL() string
	GetSettingsDefaultsFile() string
}

var _ ConfigurationStorage = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetStorageURI() string {
	if strings.TrimSpace(c.StorageURI) == "" {
		return "mem://"
	}
	return c.StorageURI
}

func (c *ConfigurationDefault) GetStorageBucket() string {
	if strings.TrimSpace(c.StorageBucket) == "" {
		return "autotranslate"
	}
	return c.StorageBucket
}

func (c *ConfigurationDefault) GetHistoryDatabaseURL() string {
	return c.HistoryDatabaseURL
}

func (c *ConfigurationDefault) GetSettingsDefaultsFile() string {
	return c.SettingsDefaultsFile
}

type ConfigurationTranslator interface {
	GetTranslatorEndpoint() string
	GetTranslatorAPIKey() string
	GetMessageLanguages() []string
}

var _ ConfigurationTranslator = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetTranslatorEndpoint() string {
	return strings.TrimRight(c.TranslatorEndpoint, "/")
}

func (c *ConfigurationDefault) GetTranslatorAPIKey() string {
	return c.TranslatorAPIKey
}

func (c *ConfigurationDefault) GetMessageLanguages() []string {
	if len(c.MessageLanguages) == 0 {
		return []string{"en"}
	}
	return c.MessageLanguages
}

type ConfigurationRateLimit interface {
	GetTranslatorRequestsPerSecond() float64
	GetTranslatorBurst() int
}

var _ ConfigurationRateLimit = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetTranslatorRequestsPerSecond() float64 {
	return max(0, c.TranslatorRequestsPerSecond)
}

func (c *ConfigurationDefault) GetTranslatorBurst() int {
	return max(1, c.TranslatorBurst)
}

type ConfigurationProfiler interface {
	ProfilerEnabled() bool
	ProfilerPort() string
}

var _ ConfigurationProfiler = new(ConfigurationDefault)

func (c *ConfigurationDefault) ProfilerEnabled() bool {
	return c.ProfilerEnable
}

func (c *ConfigurationDefault) ProfilerPort() string {
	if strings.TrimSpace(c.ProfilerPortAddr) == "" {
		return ":6060"
	}
	return c.ProfilerPortAddr
}
