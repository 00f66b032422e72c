package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jobmill/jobmill/job"
)

// tracerName is the instrumentation scope name for jobmill tracing.
const tracerName = "github.com/jobmill/jobmill"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: jobmill.job.id, jobmill.job.type,
// jobmill.job.priority, jobmill.target_id, jobmill.principal_id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobmill.job.execute",
			trace.WithAttributes(
				attribute.String("jobmill.job.id", r.ID.String()),
				attribute.String("jobmill.job.type", r.Type),
				attribute.Int("jobmill.job.priority", r.Priority),
				attribute.String("jobmill.target_id", r.TargetID),
				attribute.String("jobmill.principal_id", r.PrincipalID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
