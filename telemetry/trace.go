package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans and metrics.
//
//nolint:gochecknoglobals // OpenTelemetry attribute keys must be global for reuse
var (
	AttrMethodKey    = attribute.Key("autotranslate_method")
	AttrPackageKey   = attribute.Key("autotranslate_package")
	AttrStatusKey    = attribute.Key("autotranslate_status")
	AttrErrorKey     = attribute.Key("autotranslate_error")
	AttrOperationKey = attribute.Key("autotranslate_operation")
	AttrContextKey   = attribute.Key("autotranslate_context")
)

// Tracer opens spans and records their latency.
type Tracer interface {
	Start(ctx context.Context, methodName string, options ...trace.SpanStartOption) (context.Context, Span)
}

// Span is an open span; End records the outcome and latency.
type Span interface {
	trace.Span
	EndWith(ctx context.Context, err error)
}

type tracer struct {
	name           string
	tracer         trace.Tracer
	latencyMeasure metric.Float64Histogram
}

// NewTracer creates a new tracer for a package.
func NewTracer(name string, options ...trace.TracerOption) Tracer {
	return &tracer{
		name:           name,
		tracer:         otel.Tracer(name, options...),
		latencyMeasure: LatencyMeasure(name),
	}
}

type span struct {
	trace.Span
	t         *tracer
	method    string
	startedAt time.Time
}

//nolint:spancheck // spans are returned to the caller who ends them
func (t *tracer) Start(
	ctx context.Context,
	spanName string,
	options ...trace.SpanStartOption,
) (context.Context, Span) {
	options = append(options, trace.WithAttributes(AttrMethodKey.String(spanName)))

	sCtx, otelSpan := t.tracer.Start(ctx, spanName, options...)
	return sCtx, &span{
		Span:      otelSpan,
		t:         t,
		method:    t.name + "/" + spanName,
		startedAt: time.Now(),
	}
}

func (s *span) EndWith(ctx context.Context, err error) {
	if err != nil {
		s.SetAttributes(AttrErrorKey.String(err.Error()))
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
	} else {
		s.SetStatus(codes.Ok, "")
	}
	s.End()

	s.t.latencyMeasure.Record(ctx,
		float64(time.Since(s.startedAt).Milliseconds()),
		metric.WithAttributes(
			AttrStatusKey.String(ErrorCode(err)),
			AttrMethodKey.String(s.method)),
	)
}

func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline exceeded"
	}
	return "err"
}
