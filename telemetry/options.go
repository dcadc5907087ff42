package telemetry

import (
	"go.opentelemetry.io/otel/propagation"
	sdklogs "go.opentelemetry.io/otel/sdk/log"
	sdkmetrics "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Service identifies the execution context emitting telemetry. ContextID
// becomes the service instance id, so the background and every page report
// as separate instances of one service.
type Service struct {
	Name        string
	Version     string
	Environment string
	ContextID   string
}

type Option func(m *manager)

func WithService(svc Service) Option {
	return func(m *manager) {
		m.service = svc
	}
}

// WithDisabled turns Init into a no-op regardless of configuration.
func WithDisabled() Option {
	return func(m *manager) {
		m.disabled = true
	}
}

func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(m *manager) {
		m.propagator = p
	}
}

// WithTraceExporter replaces the OTEL_TRACES_EXPORTER selection.
func WithTraceExporter(exporter sdktrace.SpanExporter) Option {
	return func(m *manager) {
		m.spanExporter = exporter
	}
}

func WithTraceSampler(sampler sdktrace.Sampler) Option {
	return func(m *manager) {
		m.sampler = sampler
	}
}

// WithMetricsReader replaces the OTEL_METRICS_EXPORTER selection.
func WithMetricsReader(reader sdkmetrics.Reader) Option {
	return func(m *manager) {
		m.metricReader = reader
	}
}

// WithLogsExporter replaces the OTEL_LOGS_EXPORTER selection.
func WithLogsExporter(exporter sdklogs.Exporter) Option {
	return func(m *manager) {
		m.logExporter = exporter
	}
}
