package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/neomorfeo/procura/internal/domain"
)

// CreateOfferInput is the payload of OfferService.Create.
type CreateOfferInput struct {
	RFQID      string
	VendorID   string
	VendorName string
	Currency   string
	Items      []domain.LineItemInput
}

// OfferService records vendor offers and moves them through review and
// selection. It keeps the owning RFQ's offer counter and status in step.
type OfferService struct {
	deps Deps
	life lifecycle[domain.Offer, domain.OfferStatus]
}

// NewOfferService creates the service.
func NewOfferService(deps Deps) *OfferService {
	return &OfferService{
		deps: deps,
		life: lifecycle[domain.Offer, domain.OfferStatus]{
			entity:     domain.EntityOffer,
			collection: domain.CollectionOffers,
			validator:  deps.Machines.Offer,
			status:     func(o *domain.Offer) *domain.OfferStatus { return &o.Status },
			stamps:     func(o *domain.Offer) *domain.Stamps { return &o.Stamps },
		},
	}
}

// Create records an offer from an invited vendor. The first offer moves the
// RFQ to OFFERS_RECEIVED; the offer that completes the invited set raises a
// task for the RFQ creator.
func (s *OfferService) Create(ctx context.Context, actor domain.Actor, in CreateOfferInput) (domain.Offer, error) {
	if err := RequirePermission(actor, domain.PermRecordOffers, "record offer"); err != nil {
		return domain.Offer{}, err
	}
	if strings.TrimSpace(in.VendorID) == "" {
		return domain.Offer{}, domain.Invalid("vendorId", "is required")
	}
	lines, err := domain.NewLineItems(in.Items)
	if err != nil {
		return domain.Offer{}, err
	}

	rfq, err := load[domain.RFQ](ctx, s.deps.Store, domain.EntityRFQ, domain.CollectionRFQs, in.RFQID)
	if err != nil {
		return domain.Offer{}, err
	}
	if err := acceptsOfferFrom(rfq, in.VendorID); err != nil {
		return domain.Offer{}, err
	}

	now := s.deps.now()
	offer := domain.Offer{
		ID:         newID(),
		RFQID:      rfq.ID,
		VendorID:   in.VendorID,
		VendorName: in.VendorName,
		Status:     domain.OfferUploaded,
		Currency:   defaultCurrency(in.Currency),
		Stamps:     domain.NewStamps(actor.ID, now),
	}
	offer.Subtotal, offer.TaxAmount, offer.Total = domain.Totals(lines)
	items := make([]domain.OfferItem, len(lines))
	for i, l := range lines {
		items[i] = domain.OfferItem{ID: newID(), OfferID: offer.ID, LineItem: l}
	}

	var (
		rfqFrom domain.RFQStatus
		ready   bool
	)
	err = s.deps.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		r, err := load[domain.RFQ](ctx, tx, domain.EntityRFQ, domain.CollectionRFQs, in.RFQID)
		if err != nil {
			return err
		}
		if err := acceptsOfferFrom(r, in.VendorID); err != nil {
			return err
		}

		existing, err := queryAll[domain.Offer](ctx, tx, domain.Query{
			Collection: domain.CollectionOffers,
			Filters:    []domain.Filter{domain.Where("rfqId", r.ID)},
		})
		if err != nil {
			return err
		}
		live := liveVendors(r, existing)
		if live[in.VendorID] {
			return domain.Invalid("vendorId", "vendor %s already has a live offer for RFQ %s", in.VendorID, r.Number)
		}

		number, err := NextNumber(ctx, tx, domain.NumberOffer, now)
		if err != nil {
			return err
		}
		offer.Number = number
		if err := tx.Create(ctx, domain.CollectionOffers, offer.ID, offer); err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.Create(ctx, domain.CollectionOfferItems, it.ID, it); err != nil {
				return err
			}
		}

		rfqFrom = r.Status
		if r.Status == domain.RFQIssued {
			if err := domain.Check(s.deps.Machines.RFQ, domain.EntityRFQ, r.Status, domain.RFQOffersReceived); err != nil {
				return err
			}
			r.Status = domain.RFQOffersReceived
		}
		r.OffersReceived++
		r.Touch(actor.ID, now)
		if err := tx.Set(ctx, domain.CollectionRFQs, r.ID, r); err != nil {
			return err
		}

		// Only the offer that completes the invited set raises the task.
		ready = len(live)+1 == len(r.InvitedVendorIDs)
		rfq = r
		return nil
	})
	if err != nil {
		return domain.Offer{}, classify("create offer", err)
	}

	offerRef := domain.EntityRef{Type: domain.EntityOffer, ID: offer.ID}
	s.deps.Effects.Dispatch(ctx, offerRef, auditEvent(actor, "OFFER_CREATED", offerRef,
		"Offer "+offer.Number+" recorded for RFQ "+rfq.Number,
		map[string]any{"number": offer.Number, "rfqId": rfq.ID, "vendorId": offer.VendorID, "total": offer.Total.String()},
	))

	rfqRef := domain.EntityRef{Type: domain.EntityRFQ, ID: rfq.ID}
	var rfqEffects []domain.Effect
	if rfqFrom != rfq.Status {
		rfqEffects = append(rfqEffects, transitionAudit(actor, "RFQ_OFFERS_RECEIVED", rfqRef, rfq.Number, rfqFrom, rfq.Status, nil))
	}
	if ready {
		rfqEffects = append(rfqEffects, domain.CreateTask{Spec: domain.TaskSpec{
			UserID:   rfq.CreatedBy,
			Category: domain.TaskRFQReadyForEvaluation,
			Entity:   rfqRef,
			Title:    fmt.Sprintf("RFQ %s has received all %d offers", rfq.Number, len(rfq.InvitedVendorIDs)),
			Priority: domain.PriorityHigh,
		}})
	}
	s.deps.Effects.Dispatch(ctx, rfqRef, rfqEffects...)
	return offer, nil
}

func acceptsOfferFrom(rfq domain.RFQ, vendorID string) error {
	if !rfq.AcceptsOffers() {
		return &domain.InvalidTransitionError{
			Entity: domain.EntityRFQ,
			From:   string(rfq.Status),
			To:     string(domain.RFQOffersReceived),
			Reason: fmt.Sprintf("Cannot receive offers for RFQ with status: %s", rfq.Status),
		}
	}
	if !rfq.Invited(vendorID) {
		return domain.Invalid("vendorId", "vendor %s is not invited to RFQ %s", vendorID, rfq.Number)
	}
	return nil
}

// liveVendors returns the invited vendors that hold a live offer.
func liveVendors(rfq domain.RFQ, offers []domain.Offer) map[string]bool {
	live := make(map[string]bool, len(offers))
	for _, o := range offers {
		if o.Live() && rfq.Invited(o.VendorID) {
			live[o.VendorID] = true
		}
	}
	return live
}

// StartReview opens an uploaded offer for review.
func (s *OfferService) StartReview(ctx context.Context, actor domain.Actor, id string) (domain.Offer, error) {
	return s.move(ctx, actor, id, domain.OfferUnderReview, domain.PermEvaluateOffers, "review offer", "OFFER_REVIEW_STARTED", nil, nil)
}

// Evaluate scores an offer under review. score ranges from 0 to 100.
func (s *OfferService) Evaluate(ctx context.Context, actor domain.Actor, id string, score int, notes string) (domain.Offer, error) {
	if score < 0 || score > 100 {
		return domain.Offer{}, domain.Invalid("score", "must be between 0 and 100, got %d", score)
	}
	mutate := func(_ context.Context, _ domain.Transaction, o *domain.Offer) error {
		o.Score = &score
		o.EvaluationNotes = notes
		return nil
	}
	return s.move(ctx, actor, id, domain.OfferEvaluated, domain.PermEvaluateOffers, "evaluate offer", "OFFER_EVALUATED", mutate,
		map[string]any{"score": score})
}

// Reject turns an offer down.
func (s *OfferService) Reject(ctx context.Context, actor domain.Actor, id, reason string) (domain.Offer, error) {
	return s.move(ctx, actor, id, domain.OfferRejected, domain.PermEvaluateOffers, "reject offer", "OFFER_REJECTED", nil,
		map[string]any{"reason": reason})
}

// Withdraw retracts an offer on the vendor's behalf. The RFQ's counter drops
// so it keeps mirroring the live offers.
func (s *OfferService) Withdraw(ctx context.Context, actor domain.Actor, id string) (domain.Offer, error) {
	mutate := func(ctx context.Context, tx domain.Transaction, o *domain.Offer) error {
		rfq, err := load[domain.RFQ](ctx, tx, domain.EntityRFQ, domain.CollectionRFQs, o.RFQID)
		if err != nil {
			return err
		}
		rfq.OffersReceived = max(rfq.OffersReceived-1, 0)
		rfq.Touch(actor.ID, s.deps.now())
		return tx.Set(ctx, domain.CollectionRFQs, rfq.ID, rfq)
	}
	return s.move(ctx, actor, id, domain.OfferWithdrawn, domain.PermRecordOffers, "withdraw offer", "OFFER_WITHDRAWN", mutate, nil)
}

func (s *OfferService) move(
	ctx context.Context,
	actor domain.Actor,
	id string,
	to domain.OfferStatus,
	perm domain.Permission,
	action, eventType string,
	mutate func(ctx context.Context, tx domain.Transaction, o *domain.Offer) error,
	extra map[string]any,
) (domain.Offer, error) {
	if err := RequirePermission(actor, perm, action); err != nil {
		return domain.Offer{}, err
	}
	offer, from, err := s.life.transition(ctx, s.deps, step[domain.Offer, domain.OfferStatus]{
		id: id, to: to, actor: actor, mutate: mutate,
	})
	if err != nil {
		return domain.Offer{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityOffer, ID: offer.ID}
	s.deps.Effects.Dispatch(ctx, ref, transitionAudit(actor, eventType, ref, offer.Number, from, offer.Status, extra))
	return offer, nil
}

// Select awards the RFQ to an offer. In one transaction the offer becomes
// SELECTED, every other open offer on the RFQ becomes REJECTED and the RFQ is
// completed.
func (s *OfferService) Select(ctx context.Context, actor domain.Actor, id string) (domain.Offer, error) {
	if err := RequirePermission(actor, domain.PermSelectOffers, "select offer"); err != nil {
		return domain.Offer{}, err
	}

	var (
		rfq      domain.RFQ
		rfqFrom  domain.RFQStatus
		rejected []domain.Offer
	)
	mutate := func(ctx context.Context, tx domain.Transaction, o *domain.Offer) error {
		rejected = rejected[:0]
		r, err := load[domain.RFQ](ctx, tx, domain.EntityRFQ, domain.CollectionRFQs, o.RFQID)
		if err != nil {
			return err
		}
		if err := domain.Check(s.deps.Machines.RFQ, domain.EntityRFQ, r.Status, domain.RFQCompleted); err != nil {
			return err
		}

		siblings, err := queryAll[domain.Offer](ctx, tx, domain.Query{
			Collection: domain.CollectionOffers,
			Filters:    []domain.Filter{domain.Where("rfqId", r.ID)},
		})
		if err != nil {
			return err
		}
		now := s.deps.now()
		for _, sib := range siblings {
			if sib.ID == o.ID || !s.deps.Machines.Offer.Validate(sib.Status, domain.OfferRejected).Allowed {
				continue
			}
			sib.Status = domain.OfferRejected
			sib.Touch(actor.ID, now)
			if err := tx.Set(ctx, domain.CollectionOffers, sib.ID, sib); err != nil {
				return err
			}
			rejected = append(rejected, sib)
		}

		rfqFrom = r.Status
		r.Status = domain.RFQCompleted
		r.SelectedOfferID = o.ID
		r.CompletedAt = &now
		r.Touch(actor.ID, now)
		rfq = r
		return tx.Set(ctx, domain.CollectionRFQs, r.ID, r)
	}

	offer, from, err := s.life.transition(ctx, s.deps, step[domain.Offer, domain.OfferStatus]{
		id: id, to: domain.OfferSelected, actor: actor, mutate: mutate,
	})
	if err != nil {
		return domain.Offer{}, err
	}

	offerRef := domain.EntityRef{Type: domain.EntityOffer, ID: offer.ID}
	s.deps.Effects.Dispatch(ctx, offerRef, transitionAudit(actor, "OFFER_SELECTED", offerRef, offer.Number, from, offer.Status,
		map[string]any{"rfqId": rfq.ID}))
	for _, sib := range rejected {
		ref := domain.EntityRef{Type: domain.EntityOffer, ID: sib.ID}
		s.deps.Effects.Dispatch(ctx, ref, auditEvent(actor, "OFFER_REJECTED", ref,
			"Offer "+sib.Number+" rejected in favour of "+offer.Number,
			map[string]any{"selectedOfferId": offer.ID},
		))
	}

	rfqRef := domain.EntityRef{Type: domain.EntityRFQ, ID: rfq.ID}
	s.deps.Effects.Dispatch(ctx, rfqRef,
		transitionAudit(actor, "RFQ_COMPLETED", rfqRef, rfq.Number, rfqFrom, rfq.Status,
			map[string]any{"selectedOfferId": offer.ID}),
		domain.CompleteTask{
			Entity:   rfqRef,
			Category: domain.TaskRFQReadyForEvaluation,
			ActorID:  actor.ID,
			Success:  true,
		},
	)
	return offer, nil
}

// Get returns an offer.
func (s *OfferService) Get(ctx context.Context, id string) (domain.Offer, error) {
	return load[domain.Offer](ctx, s.deps.Store, domain.EntityOffer, domain.CollectionOffers, id)
}

// ListItems returns the line items of the given offers. Large id sets are
// read in parallel batches.
func (s *OfferService) ListItems(ctx context.Context, offerIDs []string) ([]domain.OfferItem, error) {
	return fanOutByBatch(ctx, offerIDs, func(ctx context.Context, batch []string) ([]domain.OfferItem, error) {
		return queryAll[domain.OfferItem](ctx, s.deps.Store, domain.Query{
			Collection: domain.CollectionOfferItems,
			Filters:    []domain.Filter{domain.WhereIn("offerId", batch)},
			OrderBy:    "lineNumber",
		})
	})
}
