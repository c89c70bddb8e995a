package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/procura/internal/domain"
)

// TracingQueue wraps a domain.EffectQueue with OpenTelemetry tracing.
type TracingQueue struct {
	next   domain.EffectQueue
	tracer trace.Tracer
}

// Compile-time check: TracingQueue implements domain.EffectQueue.
var _ domain.EffectQueue = (*TracingQueue)(nil)

// NewTracingQueue creates a tracing decorator around the given queue.
func NewTracingQueue(next domain.EffectQueue) *TracingQueue {
	return &TracingQueue{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (q *TracingQueue) Enqueue(ctx context.Context, ref domain.EntityRef, effect domain.Effect) error {
	ctx, span := q.tracer.Start(ctx, "EffectQueue.Enqueue",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("effect.kind", string(effect.Kind())),
			attribute.String("entity.type", string(ref.Type)),
			attribute.String("entity.id", ref.ID),
		),
	)
	defer span.End()

	err := q.next.Enqueue(ctx, ref, effect)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
