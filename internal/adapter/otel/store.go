package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/procura/internal/domain"
)

const tracerName = "github.com/neomorfeo/procura/internal/adapter/otel"

// TracingStore wraps a domain.DocumentStore with OpenTelemetry tracing.
// Each call creates a span carrying the collection and document id. Reads and
// writes made inside a transaction become children of the transaction span.
type TracingStore struct {
	next   domain.DocumentStore
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.DocumentStore.
var _ domain.DocumentStore = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.DocumentStore) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	return traceGet(ctx, s.tracer, "DocumentStore.Get", s.next, collection, id)
}

func (s *TracingStore) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	return traceQuery(ctx, s.tracer, "DocumentStore.Query", s.next, q)
}

func (s *TracingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Transaction) error) error {
	ctx, span := s.tracer.Start(ctx, "DocumentStore.RunTransaction")
	defer span.End()

	attempts := 0
	err := s.next.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		attempts++
		return fn(ctx, &tracingTx{next: tx, tracer: s.tracer})
	})
	span.SetAttributes(attribute.Int("tx.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) BatchWrite(ctx context.Context, ops []domain.WriteOp) error {
	ctx, span := s.tracer.Start(ctx, "DocumentStore.BatchWrite",
		trace.WithAttributes(attribute.Int("batch.size", len(ops))),
	)
	defer span.End()

	err := s.next.BatchWrite(ctx, ops)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

type tracingTx struct {
	next   domain.Transaction
	tracer trace.Tracer
}

func (t *tracingTx) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	return traceGet(ctx, t.tracer, "Transaction.Get", t.next, collection, id)
}

func (t *tracingTx) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	return traceQuery(ctx, t.tracer, "Transaction.Query", t.next, q)
}

func (t *tracingTx) Create(ctx context.Context, collection, id string, data any) error {
	return t.write(ctx, "Transaction.Create", collection, id, func(ctx context.Context) error {
		return t.next.Create(ctx, collection, id, data)
	})
}

func (t *tracingTx) Set(ctx context.Context, collection, id string, data any) error {
	return t.write(ctx, "Transaction.Set", collection, id, func(ctx context.Context) error {
		return t.next.Set(ctx, collection, id, data)
	})
}

func (t *tracingTx) Delete(ctx context.Context, collection, id string) error {
	return t.write(ctx, "Transaction.Delete", collection, id, func(ctx context.Context) error {
		return t.next.Delete(ctx, collection, id)
	})
}

func (t *tracingTx) write(ctx context.Context, name, collection, id string, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(docAttributes(collection, id)...))
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func traceGet(ctx context.Context, tracer trace.Tracer, name string, r domain.DocumentReader, collection, id string) (domain.Document, error) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(docAttributes(collection, id)...))
	defer span.End()

	doc, err := r.Get(ctx, collection, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return doc, err
}

func traceQuery(ctx context.Context, tracer trace.Tracer, name string, r domain.DocumentReader, q domain.Query) ([]domain.Document, error) {
	ctx, span := tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("db.collection.name", q.Collection),
			attribute.Int("query.filters", len(q.Filters)),
		),
	)
	defer span.End()

	if q.OrderBy != "" {
		span.SetAttributes(attribute.String("query.order_by", q.OrderBy))
	}
	if q.Limit > 0 {
		span.SetAttributes(attribute.Int("query.limit", q.Limit))
	}

	docs, err := r.Query(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(docs)))
	}
	return docs, err
}

func docAttributes(collection, id string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.collection.name", collection),
		attribute.String("document.id", id),
	}
}
