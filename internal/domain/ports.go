package domain

import (
	"context"
	"encoding/json"
	"time"
)

// MaxInFilterValues is the largest number of values accepted by an OpIn filter.
const MaxInFilterValues = 30

// Document is a stored record: an identifier plus its JSON body.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// FilterOp is a comparison supported by Query filters.
type FilterOp string

const (
	OpEqual FilterOp = "=="
	OpIn    FilterOp = "in"
)

// Filter restricts a query on a top-level document field.
type Filter struct {
	Field string
	Op    FilterOp
	Value any // for OpIn, a []string of at most MaxInFilterValues values
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// WhereIn builds an IN filter.
func WhereIn(field string, values []string) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// DocumentReader is the read half of the store contract.
type DocumentReader interface {
	// Get returns ErrDocumentNotFound when the document is absent.
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Transaction is an atomic read-modify-write scope. Reads observe writes
// already made in the same transaction.
type Transaction interface {
	DocumentReader
	// Create fails with ErrDocumentExists if the document is present.
	Create(ctx context.Context, collection, id string, data any) error
	Set(ctx context.Context, collection, id string, data any) error
	Delete(ctx context.Context, collection, id string) error
}

// WriteKind is the kind of a batched write.
type WriteKind string

const (
	WriteSet    WriteKind = "set"
	WriteCreate WriteKind = "create"
	WriteDelete WriteKind = "delete"
)

// WriteOp is one entry of an atomic batch write.
type WriteOp struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       any
}

// DocumentStore is the only shared mutable resource used by the workflow core.
type DocumentStore interface {
	DocumentReader
	// RunTransaction executes fn atomically. fn may be invoked more than once
	// when the backend detects a conflicting write, so it must not have
	// effects outside tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
	// BatchWrite applies all ops atomically without prior reads.
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// AuditSink records audit events.
type AuditSink interface {
	LogEvent(ctx context.Context, event AuditEvent) error
}

// TaskService creates, finds and completes user tasks.
type TaskService interface {
	CreateTask(ctx context.Context, spec TaskSpec) (Task, error)
	// FindTaskByEntity returns the tasks of a category on an entity whose
	// status is one of statuses, oldest first.
	FindTaskByEntity(ctx context.Context, ref EntityRef, category TaskCategory, statuses []TaskStatus) ([]Task, error)
	CompleteTask(ctx context.Context, taskID, actorID string, success bool) error
}

// EffectQueue durably enqueues side effects for asynchronous execution with retries.
type EffectQueue interface {
	Enqueue(ctx context.Context, ref EntityRef, effect Effect) error
}

// Clock returns the current time. Injected so tests can pin calendar days.
type Clock func() time.Time
