package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/domain"
)

// Machines holds the transition validator of every entity type.
type Machines struct {
	RFQ           domain.TransitionValidator[domain.RFQStatus]
	Offer         domain.TransitionValidator[domain.OfferStatus]
	PurchaseOrder domain.TransitionValidator[domain.PurchaseOrderStatus]
	GoodsReceipt  domain.TransitionValidator[domain.GoodsReceiptStatus]
	Proposal      domain.TransitionValidator[domain.ProposalStatus]
	Match         domain.TransitionValidator[domain.MatchStatus]
}

// Deps are the collaborators shared by every workflow service.
type Deps struct {
	Store       domain.DocumentStore
	Machines    Machines
	Effects     *EffectDispatcher
	Idempotency *Idempotency
	Clock       domain.Clock
	Logger      *zap.Logger
}

func (d Deps) now() time.Time {
	if d.Clock == nil {
		return time.Now().UTC()
	}
	return d.Clock().UTC()
}

// lifecycle describes how the generic workflow reaches into one entity type.
type lifecycle[T any, S ~string] struct {
	entity     domain.EntityType
	collection string
	validator  domain.TransitionValidator[S]
	status     func(*T) *S
	stamps     func(*T) *domain.Stamps
}

// step is one status change of an entity.
type step[T any, S ~string] struct {
	id    string
	to    S
	actor domain.Actor

	// guard runs on every load before the transition check, e.g. the
	// self-approval rule.
	guard func(v T) error

	// mutate applies the change's extra writes inside the transaction,
	// after the status has been set.
	mutate func(ctx context.Context, tx domain.Transaction, v *T) error
}

// transition loads the entity, validates the change, and persists it. The
// check is repeated inside the transaction against a fresh read, so a racing
// writer cannot slip an illegal transition through. It returns the updated
// entity and the status it moved from.
func (l lifecycle[T, S]) transition(ctx context.Context, d Deps, st step[T, S]) (T, S, error) {
	var zero T
	var from S

	current, err := load[T](ctx, d.Store, l.entity, l.collection, st.id)
	if err != nil {
		return zero, from, err
	}
	if err := l.check(current, st); err != nil {
		return zero, from, err
	}

	var updated T
	err = d.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		v, err := load[T](ctx, tx, l.entity, l.collection, st.id)
		if err != nil {
			return err
		}
		if err := l.check(v, st); err != nil {
			return err
		}

		from = *l.status(&v)
		*l.status(&v) = st.to
		l.stamps(&v).Touch(st.actor.ID, d.now())
		if st.mutate != nil {
			if err := st.mutate(ctx, tx, &v); err != nil {
				return err
			}
		}
		if err := tx.Set(ctx, l.collection, st.id, v); err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		return zero, from, classify("persist "+string(l.entity), err)
	}
	return updated, from, nil
}

func (l lifecycle[T, S]) check(v T, st step[T, S]) error {
	if st.guard != nil {
		if err := st.guard(v); err != nil {
			return err
		}
	}
	return domain.Check(l.validator, l.entity, *l.status(&v), st.to)
}

// transitionAudit describes a completed status change.
func transitionAudit[S ~string](actor domain.Actor, eventType string, ref domain.EntityRef, number string, from, to S, extra map[string]any) domain.AuditEvent {
	metadata := map[string]any{
		"number":     number,
		"fromStatus": string(from),
		"toStatus":   string(to),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	description := string(ref.Type) + " " + number + " moved from " + string(from) + " to " + string(to)
	return auditEvent(actor, eventType, ref, description, metadata)
}
