package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names, surfaced through the Prometheus exporter on
// Telemetry.MetricsPort.
const (
	MetricOrdersPlacedTotal = "botsupervisor_orders_placed_total"
	MetricOrdersFailedTotal = "botsupervisor_orders_failed_total"
	MetricTicksTotal        = "botsupervisor_engine_ticks_total"
	MetricTickLatency       = "botsupervisor_engine_tick_latency_seconds"
	MetricLiveBots          = "botsupervisor_live_bots"
	MetricExchangeCallLatency = "botsupervisor_exchange_call_latency_seconds"
)

// Metrics holds the initialized instruments shared across strategy
// engines. ExchangeCallLatency is created here, but nothing records to it.
type Metrics struct {
	OrdersPlacedTotal  metric.Int64Counter
	OrdersFailedTotal  metric.Int64Counter
	TicksTotal         metric.Int64Counter
	TickLatency        metric.Float64Histogram
	ExchangeCallLatency metric.Float64Histogram
}

var (
	global     *Metrics
	initOnce   sync.Once
	initMu     sync.Mutex
)

func initMetrics(m metric.Meter) error {
	initMu.Lock()
	defer initMu.Unlock()

	ordersPlaced, err := m.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("orders successfully placed"))
	if err != nil {
		return err
	}
	ordersFailed, err := m.Int64Counter(MetricOrdersFailedTotal, metric.WithDescription("order placement failures"))
	if err != nil {
		return err
	}
	ticks, err := m.Int64Counter(MetricTicksTotal, metric.WithDescription("engine ticks executed"))
	if err != nil {
		return err
	}
	tickLatency, err := m.Float64Histogram(MetricTickLatency, metric.WithDescription("engine tick wall time"))
	if err != nil {
		return err
	}
	exchangeLatency, err := m.Float64Histogram(MetricExchangeCallLatency, metric.WithDescription("exchange HTTP call latency"))
	if err != nil {
		return err
	}

	global = &Metrics{
		OrdersPlacedTotal:   ordersPlaced,
		OrdersFailedTotal:   ordersFailed,
		TicksTotal:          ticks,
		TickLatency:         tickLatency,
		ExchangeCallLatency: exchangeLatency,
	}
	return nil
}

// Global returns the process-wide metrics instruments, initializing a
// no-op fallback set if Setup was never called (e.g. in unit tests).
func Global() *Metrics {
	initOnce.Do(func() {
		if global == nil {
			_ = initMetrics(GetMeter("botsupervisor_fallback"))
		}
	})
	return global
}

// RecordOrderPlaced increments the orders-placed counter with a strategy label.
func RecordOrderPlaced(ctx context.Context, strategy string) {
	if m := Global(); m != nil {
		m.OrdersPlacedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

// RecordOrderFailed increments the orders-failed counter with a strategy label.
func RecordOrderFailed(ctx context.Context, strategy string) {
	if m := Global(); m != nil {
		m.OrdersFailedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

// RecordTick records one engine tick's wall-clock latency.
func RecordTick(ctx context.Context, strategy string, seconds float64) {
	if m := Global(); m != nil {
		attrs := metric.WithAttributes(attribute.String("strategy", strategy))
		m.TicksTotal.Add(ctx, 1, attrs)
		m.TickLatency.Record(ctx, seconds, attrs)
	}
}
