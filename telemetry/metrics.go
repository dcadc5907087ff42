package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName prefixes every instrument the module records.
const MeterName = "github.com/pitabwire/autotranslate"

// Units are encoded according to the case-sensitive abbreviations from the
// Unified Code for Units of Measure: http://unitsofmeasure.org/ucum.html.
const (
	unitDimensionless = "1"
	unitMilliseconds  = "ms"
)

//nolint:gochecknoglobals // OpenTelemetry histogram boundaries must be global for reuse
var defaultMillisecondsBoundaries = []float64{
	0.0, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0, 50.0, 100.0, 200.0, 500.0, 1000.0, 2000.0, 5000.0, 10000.0,
}

// Views returns the latency histogram view for every tracer under prefix.
func Views(prefix string) []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: prefix + "*/latency", Kind: sdkmetric.InstrumentKindHistogram},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: defaultMillisecondsBoundaries,
				},
				AttributeFilter: func(kv attribute.KeyValue) bool {
					return kv.Key == AttrMethodKey || kv.Key == AttrStatusKey
				},
			},
		),
	}
}

// LatencyMeasure returns the histogram recording method call latency for pkg.
func LatencyMeasure(pkg string) metric.Float64Histogram {
	pkgMeter := otel.Meter(pkg, metric.WithInstrumentationAttributes(AttrPackageKey.String(pkg)))

	m, err := pkgMeter.Float64Histogram(
		pkg+"/latency",
		metric.WithDescription("Latency distribution of method calls"),
		metric.WithUnit(unitMilliseconds),
	)
	if err != nil {
		// Only invalid instrument names fail here, which tests catch.
		panic(fmt.Sprintf("pkg=%q: %v", pkg, err))
	}

	return m
}

// DimensionlessMeasure creates a simple counter for dimensionless measurements.
func DimensionlessMeasure(pkg string, meterName string, description string) metric.Int64Counter {
	pkgMeter := otel.Meter(pkg, metric.WithInstrumentationAttributes(AttrPackageKey.String(pkg)))

	m, err := pkgMeter.Int64Counter(
		pkg+meterName,
		metric.WithDescription(description),
		metric.WithUnit(unitDimensionless),
	)
	if err != nil {
		panic(fmt.Sprintf("pkg=%q meter=%q: %v", pkg, meterName, err))
	}
	return m
}
