package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/neomorfeo/procura/internal/domain"
)

type idempotencyState string

const (
	idempotencyPending idempotencyState = "PENDING"
	idempotencyReady   idempotencyState = "READY"
)

type idempotencyRecord struct {
	Key         string           `json:"key"`
	Operation   string           `json:"operation"`
	State       idempotencyState `json:"state"`
	Result      json.RawMessage  `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Idempotency runs an operation at most once per business key. The key
// record in the store makes this hold across processes; in-process racers on
// the same key share the winner's result.
type Idempotency struct {
	store      domain.DocumentStore
	clock      domain.Clock
	pendingTTL time.Duration
	logger     *zap.Logger
	group      singleflight.Group
}

// NewIdempotency creates a guard. A PENDING record older than pendingTTL is
// assumed abandoned by a crashed caller and is taken over.
func NewIdempotency(store domain.DocumentStore, clock domain.Clock, pendingTTL time.Duration, logger *zap.Logger) *Idempotency {
	return &Idempotency{store: store, clock: clock, pendingTTL: pendingTTL, logger: logger}
}

// WithIdempotency runs fn once for key and records its result. Later calls
// with the same key return the recorded result without running fn. A call
// racing a still-running fn in another process fails with
// DuplicateOperationError.
func WithIdempotency[T any](ctx context.Context, g *Idempotency, key, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err, _ := g.group.Do(key, func() (any, error) {
		return g.run(ctx, key, operation, func(ctx context.Context) (json.RawMessage, error) {
			result, err := fn(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		})
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(v.(json.RawMessage), &out); err != nil {
		return zero, fmt.Errorf("decoding recorded result of %s: %w", operation, err)
	}
	return out, nil
}

func (g *Idempotency) run(ctx context.Context, key, operation string, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	recorded, claimed, err := g.claim(ctx, key, operation)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return recorded, nil
	}

	result, err := fn(ctx)
	if err != nil {
		// Release the key so a corrected retry can proceed.
		if delErr := g.store.BatchWrite(context.WithoutCancel(ctx), []domain.WriteOp{{
			Kind:       domain.WriteDelete,
			Collection: domain.CollectionIdempotencyKeys,
			ID:         key,
		}}); delErr != nil {
			g.logger.Error("releasing idempotency key failed",
				zap.String("key", key),
				zap.String("operation", operation),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	now := g.clock().UTC()
	rec := idempotencyRecord{
		Key:         key,
		Operation:   operation,
		State:       idempotencyReady,
		Result:      result,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := g.store.BatchWrite(context.WithoutCancel(ctx), []domain.WriteOp{{
		Kind:       domain.WriteSet,
		Collection: domain.CollectionIdempotencyKeys,
		ID:         key,
		Data:       rec,
	}}); err != nil {
		// fn already committed; the key stays PENDING until it expires.
		g.logger.Error("recording idempotency result failed",
			zap.String("key", key),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
	return result, nil
}

// claim either returns a recorded result or takes ownership of key.
func (g *Idempotency) claim(ctx context.Context, key, operation string) (json.RawMessage, bool, error) {
	var (
		recorded json.RawMessage
		claimed  bool
	)
	err := g.store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		recorded, claimed = nil, false
		now := g.clock().UTC()

		doc, err := tx.Get(ctx, domain.CollectionIdempotencyKeys, key)
		switch {
		case errors.Is(err, domain.ErrDocumentNotFound):
		case err != nil:
			return err
		default:
			var rec idempotencyRecord
			if err := doc.Decode(&rec); err != nil {
				return err
			}
			if rec.State == idempotencyReady {
				recorded = rec.Result
				return nil
			}
			if now.Sub(rec.CreatedAt) < g.pendingTTL {
				return &domain.DuplicateOperationError{Key: key, Operation: operation, InFlight: true}
			}
			g.logger.Warn("taking over stale idempotency key",
				zap.String("key", key),
				zap.Time("pending_since", rec.CreatedAt),
			)
		}

		claimed = true
		return tx.Set(ctx, domain.CollectionIdempotencyKeys, key, idempotencyRecord{
			Key:       key,
			Operation: operation,
			State:     idempotencyPending,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, false, classify("claim idempotency key", err)
	}
	return recorded, claimed, nil
}
