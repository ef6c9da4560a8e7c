// Package telemetry wires OpenTelemetry metrics (backed by the Prometheus
// exporter) and tracing for the supervisor and its engines, matching the
// teacher's pkg/telemetry idiom.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	tracetype "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the metric provider lifecycle.
type Telemetry struct {
	mp *sdkmetric.MeterProvider
}

// Setup installs a Prometheus-backed global meter provider.
func Setup(serviceName string) (*Telemetry, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	if err := initMetrics(mp.Meter(serviceName)); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return &Telemetry{mp: mp}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.mp == nil {
		return nil
	}
	return t.mp.Shutdown(ctx)
}

// GetMeter returns a meter for the given instrumentation name.
func GetMeter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// GetTracer returns a tracer for the given instrumentation name. No
// exporter is wired for traces (the spec's scope is metrics-observable
// engines, not distributed tracing infrastructure) so this returns the
// no-op provider's tracer unless a caller has set one.
func GetTracer(name string) tracetype.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
