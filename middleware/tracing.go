package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Pearl2B/Hangfire/state"
)

// tracerName is the instrumentation scope name for state change tracing.
const tracerName = "github.com/Pearl2B/Hangfire"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: hangfire.job.id, hangfire.job.type,
// hangfire.state.from, hangfire.state.proposed and, once committed,
// hangfire.state.elected and hangfire.state.traversed.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req *state.AttemptRequest, next Handler) (*state.Result, error) {
		attrs := []attribute.KeyValue{
			attribute.String("hangfire.job.id", jobID(req)),
			attribute.String("hangfire.state.proposed", proposed(req)),
		}
		if req.Job != nil {
			attrs = append(attrs,
				attribute.String("hangfire.job.type", req.Job.Type),
				attribute.String("hangfire.state.from", req.Job.StateName),
			)
		}
		ctx, span := tracer.Start(ctx, "hangfire.state.change",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}

		span.SetAttributes(
			attribute.String("hangfire.state.elected", res.State.Name()),
			attribute.StringSlice("hangfire.state.traversed", state.Names(res.Traversed)),
		)
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
}
