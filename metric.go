package event

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// busMetrics holds the bus counters. The zero value records nothing.
type busMetrics struct {
	posted    metric.Int64Counter
	delivered metric.Int64Counter
	dropped   metric.Int64Counter
	panics    metric.Int64Counter
}

func newBusMetrics(busName string) busMetrics {
	meter := otel.Meter(busName)
	posted, _ := meter.Int64Counter("event.posted",
		metric.WithDescription("Total number of events posted with at least one listener"))
	delivered, _ := meter.Int64Counter("event.delivered",
		metric.WithDescription("Total number of listener deliveries"))
	dropped, _ := meter.Int64Counter("event.dropped",
		metric.WithDescription("Total number of events posted to no listener"))
	panics, _ := meter.Int64Counter("event.listener.panics",
		metric.WithDescription("Total number of recovered listener panics"))
	return busMetrics{
		posted:    posted,
		delivered: delivered,
		dropped:   dropped,
		panics:    panics,
	}
}

func (m busMetrics) Posted(ctx context.Context, name string, listeners int) {
	if m.posted != nil {
		m.posted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event", name),
			attribute.Int("listeners", listeners)))
	}
}

func (m busMetrics) Delivered(ctx context.Context, name string) {
	if m.delivered != nil {
		m.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("event", name)))
	}
}

func (m busMetrics) Dropped(ctx context.Context, name, reason string) {
	if m.dropped != nil {
		m.dropped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event", name),
			attribute.String("reason", reason)))
	}
}

func (m busMetrics) Panicked(ctx context.Context, name string) {
	if m.panics != nil {
		m.panics.Add(ctx, 1, metric.WithAttributes(attribute.String("event", name)))
	}
}
