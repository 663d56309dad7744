package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	hangfire "github.com/Pearl2B/Hangfire"
	"github.com/Pearl2B/Hangfire/state"
)

// meterName is the instrumentation scope name for state change metrics.
const meterName = "github.com/Pearl2B/Hangfire"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - hangfire.state.change.duration (Float64Histogram): attempt time in
//     seconds, with attributes: proposed, status
//   - hangfire.state.change.attempts (Int64Counter): total attempts,
//     with attributes: proposed, status
//
// status is one of "ok", "conflict", "precondition", "aborted" or "error".
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, dErr := meter.Float64Histogram(
		"hangfire.state.change.duration",
		metric.WithDescription("Duration of state change attempts in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	attempts, aErr := meter.Int64Counter(
		"hangfire.state.change.attempts",
		metric.WithDescription("Total number of state change attempts"),
		metric.WithUnit("{attempt}"),
	)
	_ = aErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, req *state.AttemptRequest, next Handler) (*state.Result, error) {
		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("proposed", proposed(req)),
			attribute.String("status", outcome(err)),
		)

		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return res, err
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, hangfire.ErrConflictOnCommit):
		return "conflict"
	case errors.Is(err, hangfire.ErrPreconditionFailed):
		return "precondition"
	case errors.Is(err, hangfire.ErrAborted):
		return "aborted"
	default:
		return "error"
	}
}
