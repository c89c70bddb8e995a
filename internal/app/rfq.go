package app

import (
	"context"
	"strings"
	"time"

	"github.com/neomorfeo/procura/internal/domain"
)

// CreateRFQInput is the payload of RFQService.Create.
type CreateRFQInput struct {
	Title            string
	Description      string
	InvitedVendorIDs []string
	Deadline         *time.Time
	Items            []domain.LineItemInput
}

// RFQService drives requests for quotation through their lifecycle.
type RFQService struct {
	deps Deps
	life lifecycle[domain.RFQ, domain.RFQStatus]
}

// NewRFQService creates the service.
func NewRFQService(deps Deps) *RFQService {
	return &RFQService{deps: deps, life: rfqLifecycle(deps)}
}

func rfqLifecycle(deps Deps) lifecycle[domain.RFQ, domain.RFQStatus] {
	return lifecycle[domain.RFQ, domain.RFQStatus]{
		entity:     domain.EntityRFQ,
		collection: domain.CollectionRFQs,
		validator:  deps.Machines.RFQ,
		status:     func(r *domain.RFQ) *domain.RFQStatus { return &r.Status },
		stamps:     func(r *domain.RFQ) *domain.Stamps { return &r.Stamps },
	}
}

// Create drafts an RFQ addressed to a set of vendors.
func (s *RFQService) Create(ctx context.Context, actor domain.Actor, in CreateRFQInput) (domain.RFQ, error) {
	if err := RequirePermission(actor, domain.PermManageRFQs, "create RFQ"); err != nil {
		return domain.RFQ{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.RFQ{}, domain.Invalid("title", "is required")
	}
	vendors, err := uniqueIDs("invitedVendorIds", in.InvitedVendorIDs)
	if err != nil {
		return domain.RFQ{}, err
	}
	items, err := domain.NewLineItems(in.Items)
	if err != nil {
		return domain.RFQ{}, err
	}

	now := s.deps.now()
	rfq := domain.RFQ{
		ID:               newID(),
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Status:           domain.RFQDraft,
		InvitedVendorIDs: vendors,
		Deadline:         in.Deadline,
		Items:            items,
		Stamps:           domain.NewStamps(actor.ID, now),
	}

	err = s.deps.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		number, err := NextNumber(ctx, tx, domain.NumberRFQ, now)
		if err != nil {
			return err
		}
		rfq.Number = number
		return tx.Create(ctx, domain.CollectionRFQs, rfq.ID, rfq)
	})
	if err != nil {
		return domain.RFQ{}, classify("create RFQ", err)
	}

	ref := domain.EntityRef{Type: domain.EntityRFQ, ID: rfq.ID}
	s.deps.Effects.Dispatch(ctx, ref, auditEvent(actor, "RFQ_CREATED", ref,
		"RFQ "+rfq.Number+" created",
		map[string]any{"number": rfq.Number, "invitedVendors": len(vendors)},
	))
	return rfq, nil
}

// Issue sends a draft RFQ to its vendors.
func (s *RFQService) Issue(ctx context.Context, actor domain.Actor, id string) (domain.RFQ, error) {
	return s.move(ctx, actor, id, domain.RFQIssued, domain.PermManageRFQs, "issue RFQ", "RFQ_ISSUED", nil)
}

// StartEvaluation closes offer intake and starts comparing offers.
func (s *RFQService) StartEvaluation(ctx context.Context, actor domain.Actor, id string) (domain.RFQ, error) {
	return s.move(ctx, actor, id, domain.RFQUnderEvaluation, domain.PermEvaluateOffers, "start RFQ evaluation", "RFQ_EVALUATION_STARTED", nil)
}

// Cancel cancels an RFQ and withdraws every live offer against it in the
// same transaction.
func (s *RFQService) Cancel(ctx context.Context, actor domain.Actor, id string) (domain.RFQ, error) {
	var withdrawn []string
	mutate := func(ctx context.Context, tx domain.Transaction, rfq *domain.RFQ) error {
		withdrawn = withdrawn[:0]
		offers, err := queryAll[domain.Offer](ctx, tx, domain.Query{
			Collection: domain.CollectionOffers,
			Filters:    []domain.Filter{domain.Where("rfqId", rfq.ID)},
		})
		if err != nil {
			return err
		}
		now := s.deps.now()
		for _, o := range offers {
			if !s.deps.Machines.Offer.Validate(o.Status, domain.OfferWithdrawn).Allowed {
				continue
			}
			o.Status = domain.OfferWithdrawn
			o.Touch(actor.ID, now)
			if err := tx.Set(ctx, domain.CollectionOffers, o.ID, o); err != nil {
				return err
			}
			withdrawn = append(withdrawn, o.ID)
		}
		rfq.OffersReceived = max(rfq.OffersReceived-len(withdrawn), 0)
		return nil
	}

	rfq, err := s.move(ctx, actor, id, domain.RFQCancelled, domain.PermManageRFQs, "cancel RFQ", "RFQ_CANCELLED", mutate)
	if err != nil {
		return domain.RFQ{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityRFQ, ID: rfq.ID}
	effects := []domain.Effect{domain.CompleteTask{
		Entity: ref, Category: domain.TaskRFQReadyForEvaluation, ActorID: actor.ID, Success: false,
	}}
	for _, offerID := range withdrawn {
		offerRef := domain.EntityRef{Type: domain.EntityOffer, ID: offerID}
		effects = append(effects, auditEvent(actor, "OFFER_WITHDRAWN", offerRef,
			"Offer withdrawn because RFQ "+rfq.Number+" was cancelled",
			map[string]any{"rfqId": rfq.ID},
		))
	}
	s.deps.Effects.Dispatch(ctx, ref, effects...)
	return rfq, nil
}

func (s *RFQService) move(
	ctx context.Context,
	actor domain.Actor,
	id string,
	to domain.RFQStatus,
	perm domain.Permission,
	action, eventType string,
	mutate func(ctx context.Context, tx domain.Transaction, rfq *domain.RFQ) error,
) (domain.RFQ, error) {
	if err := RequirePermission(actor, perm, action); err != nil {
		return domain.RFQ{}, err
	}
	rfq, from, err := s.life.transition(ctx, s.deps, step[domain.RFQ, domain.RFQStatus]{
		id: id, to: to, actor: actor, mutate: mutate,
	})
	if err != nil {
		return domain.RFQ{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityRFQ, ID: rfq.ID}
	s.deps.Effects.Dispatch(ctx, ref, transitionAudit(actor, eventType, ref, rfq.Number, from, rfq.Status, nil))
	return rfq, nil
}

// Get returns an RFQ.
func (s *RFQService) Get(ctx context.Context, id string) (domain.RFQ, error) {
	return load[domain.RFQ](ctx, s.deps.Store, domain.EntityRFQ, domain.CollectionRFQs, id)
}

// ListOffers returns the offers recorded against an RFQ, oldest first.
func (s *RFQService) ListOffers(ctx context.Context, id string) ([]domain.Offer, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return queryAll[domain.Offer](ctx, s.deps.Store, domain.Query{
		Collection: domain.CollectionOffers,
		Filters:    []domain.Filter{domain.Where("rfqId", id)},
		OrderBy:    "createdAt",
	})
}

// uniqueIDs trims ids, rejects blanks and duplicates, and requires at least one.
func uniqueIDs(field string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, domain.Invalid(field, "at least one is required")
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, domain.Invalid(field, "must not contain blank ids")
		}
		if seen[id] {
			return nil, domain.Invalid(field, "duplicate id %q", id)
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
