package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/telemetry"
)

func TestDisabledManagerIsNoop(t *testing.T) {
	cfg := &config.ConfigurationDefault{OpenTelemetryDisable: true}
	mgr := telemetry.NewManager(context.Background(), cfg)

	require.True(t, mgr.Disabled())
	require.NoError(t, mgr.Init(context.Background()))
	require.Nil(t, mgr.LogHandler())
	require.NoError(t, mgr.Shutdown(context.Background()))
}

func TestTracerRecordsSpansAndLatency(t *testing.T) {
	t.Setenv("OTEL_LOGS_EXPORTER", "none")

	ctx := context.Background()
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	mgr := telemetry.NewManager(ctx, &config.ConfigurationDefault{OpenTelemetryTraceRatio: 1},
		telemetry.WithService(telemetry.Service{
			Name:        "autotranslate-test",
			Version:     "0.0.1",
			Environment: "test",
			ContextID:   "background",
		}),
		telemetry.WithTraceExporter(spans),
		telemetry.WithMetricsReader(reader),
	)
	require.NoError(t, mgr.Init(ctx))
	require.NotNil(t, mgr.LogHandler())
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	tracer := telemetry.NewTracer(telemetry.MeterName + "/test")

	spanCtx, span := tracer.Start(ctx, "ok")
	span.EndWith(spanCtx, nil)

	spanCtx, span = tracer.Start(ctx, "failing")
	span.EndWith(spanCtx, errors.New("boom"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, tp.ForceFlush(ctx))
	require.Len(t, spans.GetSpans(), 2)
}

func TestWithDisabledSkipsInit(t *testing.T) {
	mgr := telemetry.NewManager(context.Background(), &config.ConfigurationDefault{},
		telemetry.WithDisabled())

	require.True(t, mgr.Disabled())
	require.NoError(t, mgr.Init(context.Background()))
	require.Nil(t, mgr.LogHandler())
}

func TestErrorCode(t *testing.T) {
	require.Equal(t, "ok", telemetry.ErrorCode(nil))
	require.Equal(t, "canceled", telemetry.ErrorCode(context.Canceled))
	require.Equal(t, "deadline exceeded", telemetry.ErrorCode(context.DeadlineExceeded))
	require.Equal(t, "err", telemetry.ErrorCode(errors.New("x")))
}
