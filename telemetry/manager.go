package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"runtime"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklogs "go.opentelemetry.io/otel/sdk/log"
	sdkmetrics "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"

	"github.com/pitabwire/autotranslate/config"
)

type Manager interface {
	Init(ctx context.Context) error
	Disabled() bool
	LogHandler() slog.Handler
	Shutdown(ctx context.Context) error
}

type manager struct {
	service Service
	cfg     config.ConfigurationTelemetry

	disabled bool

	propagator   propagation.TextMapPropagator
	spanExporter sdktrace.SpanExporter
	sampler      sdktrace.Sampler
	metricReader sdkmetrics.Reader
	logExporter  sdklogs.Exporter

	logHandler slog.Handler
	shutdowns  []func(context.Context) error
}

// NewManager prepares the providers of one execution context. Nothing is
// installed globally until Init.
func NewManager(_ context.Context, cfg config.ConfigurationTelemetry, opts ...Option) Manager {
	m := &manager{
		cfg:      cfg,
		disabled: cfg != nil && cfg.DisableOpenTelemetry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) LogHandler() slog.Handler {
	return m.logHandler
}

func (m *manager) Disabled() bool {
	return m.disabled
}

func (m *manager) Init(ctx context.Context) error {
	if m.Disabled() {
		return nil
	}

	res, err := m.setupResource()
	if err != nil {
		return err
	}

	if m.propagator == nil {
		m.propagator = autoprop.NewTextMapPropagator()
	}

	if m.sampler == nil {
		ratio := 1.0
		if m.cfg != nil {
			ratio = m.cfg.SamplingRatio()
		}
		m.sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}

	if err = m.setupExporters(ctx); err != nil {
		return err
	}

	m.setupProviders(res)
	return nil
}

func (m *manager) setupResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(m.service.Name),
		semconv.ServiceVersion(m.service.Version),
		semconv.DeploymentEnvironmentName(m.service.Environment),
		semconv.ServiceInstanceID(m.service.ContextID),
		semconv.ProcessPID(os.Getpid()),
		semconv.ProcessRuntimeName("go"),
		semconv.ProcessRuntimeVersion(runtime.Version()),
	}

	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// setupExporters resolves exporters from the OTEL_*_EXPORTER variables, defaulting them to none.
func (m *manager) setupExporters(ctx context.Context) error {
	for _, key := range []string{"OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER", "OTEL_LOGS_EXPORTER"} {
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, "none")
		}
	}

	var err error
	if m.spanExporter == nil {
		if m.spanExporter, err = autoexport.NewSpanExporter(ctx); err != nil {
			return err
		}
	}
	if m.metricReader == nil {
		if m.metricReader, err = autoexport.NewMetricReader(ctx); err != nil {
			return err
		}
	}
	if m.logExporter == nil {
		if m.logExporter, err = autoexport.NewLogExporter(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) setupProviders(res *resource.Resource) {
	otel.SetTextMapPropagator(m.propagator)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(m.sampler),
		sdktrace.WithBatcher(m.spanExporter),
		sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	mp := sdkmetrics.NewMeterProvider(
		sdkmetrics.WithReader(m.metricReader),
		sdkmetrics.WithResource(res),
		sdkmetrics.WithView(Views(MeterName)...),
	)
	otel.SetMeterProvider(mp)

	lp := sdklogs.NewLoggerProvider(
		sdklogs.WithResource(res),
		sdklogs.WithProcessor(sdklogs.NewBatchProcessor(m.logExporter)),
	)
	global.SetLoggerProvider(lp)

	m.logHandler = otelslog.NewHandler(m.service.Name,
		otelslog.WithSource(true),
		otelslog.WithLoggerProvider(lp),
		otelslog.WithAttributes(res.Attributes()...))

	m.shutdowns = append(m.shutdowns, tp.Shutdown, mp.Shutdown, lp.Shutdown)
}

// Shutdown flushes and stops every provider that Init installed.
func (m *manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range m.shutdowns {
		errs = append(errs, shutdown(ctx))
	}
	m.shutdowns = nil
	return errors.Join(errs...)
}
