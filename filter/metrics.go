package filter

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Pearl2B/Hangfire/state"
	"github.com/Pearl2B/Hangfire/store"
)

// meterName is the instrumentation scope name for filter metrics.
const meterName = "github.com/Pearl2B/Hangfire/filter"

// Metrics counts transitions as they are applied, using the global OTel
// MeterProvider unless built with NewMetricsWithMeter.
//
// Instruments:
//   - hangfire.state.applied (Int64Counter): transitions that reached
//     application, with attributes from and to. Attempts that later fail
//     to commit are counted too.
//   - hangfire.state.traversed (Int64Counter): candidates superseded
//     during election, with attribute to.
type Metrics struct {
	applied   metric.Int64Counter
	traversed metric.Int64Counter
}

var _ state.ApplyStateFilter = (*Metrics)(nil)

// NewMetrics returns a metrics filter on the global MeterProvider.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter returns a metrics filter using the provided meter.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	applied, aErr := meter.Int64Counter(
		"hangfire.state.applied",
		metric.WithDescription("Number of state transitions applied"),
		metric.WithUnit("{transition}"),
	)
	_ = aErr // noop fallback guaranteed by OTel API contract

	traversed, tErr := meter.Int64Counter(
		"hangfire.state.traversed",
		metric.WithDescription("Number of candidate states superseded during election"),
		metric.WithUnit("{state}"),
	)
	_ = tErr

	return &Metrics{applied: applied, traversed: traversed}
}

// Name implements state.Filter.
func (m *Metrics) Name() string { return "metrics" }

// OnStateApplied implements state.ApplyStateFilter.
func (m *Metrics) OnStateApplied(ctx context.Context, c *state.ApplyContext, _ store.Transaction) error {
	to := c.NewState().Name()
	m.applied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", c.OldStateName()),
		attribute.String("to", to),
	))
	if n := len(c.TraversedStates()); n > 0 {
		m.traversed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("to", to)))
	}
	return nil
}
