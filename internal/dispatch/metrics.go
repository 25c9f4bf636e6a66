package dispatch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "tg-gateway/dispatch"

// Metrics counts callback attempts and outcomes, and the number of live tenant connections.
type Metrics struct {
	attempts  metric.Int64Counter
	delivered metric.Int64Counter
	dropped   metric.Int64Counter
	running   metric.Int64UpDownCounter
}

// NewMetrics registers the dispatch instruments on provider. A nil provider records nothing.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	m := provider.Meter(meterName)
	attempts, err := m.Int64Counter("callback.attempts",
		metric.WithDescription("Callback POST attempts, by result."))
	if err != nil {
		return nil, err
	}
	delivered, err := m.Int64Counter("callback.delivered",
		metric.WithDescription("Callbacks acknowledged with a 2xx."))
	if err != nil {
		return nil, err
	}
	dropped, err := m.Int64Counter("callback.dropped",
		metric.WithDescription("Callbacks given up on, by reason."))
	if err != nil {
		return nil, err
	}
	running, err := m.Int64UpDownCounter("dispatch.connections",
		metric.WithDescription("Tenant connections currently listening for messages."))
	if err != nil {
		return nil, err
	}
	return &Metrics{attempts: attempts, delivered: delivered, dropped: dropped, running: running}, nil
}

func (m *Metrics) attempt(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) deliver(ctx context.Context) {
	if m == nil {
		return
	}
	m.delivered.Add(ctx, 1)
}

func (m *Metrics) drop(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) connections(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.running.Add(ctx, delta)
}
