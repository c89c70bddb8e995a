package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/procura/internal/domain"
)

// ReceiptLineInput is the quantity received for one purchase order line.
type ReceiptLineInput struct {
	LineNumber       int
	ReceivedQuantity decimal.Decimal
	Condition        string
}

// CreateGoodsReceiptInput is the payload of GoodsReceiptService.Create.
type CreateGoodsReceiptInput struct {
	PurchaseOrderID string
	Lines           []ReceiptLineInput
	Notes           string
}

// GoodsReceiptService records deliveries against purchase orders and runs
// their inspection.
type GoodsReceiptService struct {
	deps Deps
	life lifecycle[domain.GoodsReceipt, domain.GoodsReceiptStatus]
}

// NewGoodsReceiptService creates the service.
func NewGoodsReceiptService(deps Deps) *GoodsReceiptService {
	return &GoodsReceiptService{
		deps: deps,
		life: lifecycle[domain.GoodsReceipt, domain.GoodsReceiptStatus]{
			entity:     domain.EntityGoodsReceipt,
			collection: domain.CollectionGoodsReceipts,
			validator:  deps.Machines.GoodsReceipt,
			status:     func(g *domain.GoodsReceipt) *domain.GoodsReceiptStatus { return &g.Status },
			stamps:     func(g *domain.GoodsReceipt) *domain.Stamps { return &g.Stamps },
		},
	}
}

// GoodsReceiptKey is the idempotency key of a receipt: one per purchase
// order, receiving user and calendar day.
func GoodsReceiptKey(purchaseOrderID, actorID, day string) string {
	return fmt.Sprintf("goods-receipt:%s:%s:%s", purchaseOrderID, actorID, day)
}

// Create records a delivery. Only the request's own shape is checked before
// the idempotency key is consulted, so a repeated request on the same day
// returns the receipt already recorded even after it has booked the
// outstanding quantities. Quantities are checked against the purchase order
// inside the guarded transaction; a rejected request releases the key.
func (s *GoodsReceiptService) Create(ctx context.Context, actor domain.Actor, in CreateGoodsReceiptInput) (domain.GoodsReceipt, error) {
	if err := RequirePermission(actor, domain.PermReceiveGoods, "receive goods"); err != nil {
		return domain.GoodsReceipt{}, err
	}
	if in.PurchaseOrderID == "" {
		return domain.GoodsReceipt{}, domain.Invalid("purchaseOrderId", "purchase order is required")
	}
	if err := validateReceiptLines(in.Lines); err != nil {
		return domain.GoodsReceipt{}, err
	}

	key := GoodsReceiptKey(in.PurchaseOrderID, actor.ID, s.deps.now().Format("2006-01-02"))
	return WithIdempotency(ctx, s.deps.Idempotency, key, "createGoodsReceipt", func(ctx context.Context) (domain.GoodsReceipt, error) {
		return s.create(ctx, actor, in)
	})
}

func (s *GoodsReceiptService) create(ctx context.Context, actor domain.Actor, in CreateGoodsReceiptInput) (domain.GoodsReceipt, error) {
	now := s.deps.now()
	gr := domain.GoodsReceipt{
		ID:              newID(),
		PurchaseOrderID: in.PurchaseOrderID,
		Status:          domain.GRPending,
		ReceivedBy:      actor.ID,
		ReceivedAt:      now,
		Notes:           in.Notes,
		Stamps:          domain.NewStamps(actor.ID, now),
	}

	var (
		po     domain.PurchaseOrder
		poFrom domain.PurchaseOrderStatus
	)
	err := s.deps.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		p, err := load[domain.PurchaseOrder](ctx, tx, domain.EntityPurchaseOrder, domain.CollectionPurchaseOrders, in.PurchaseOrderID)
		if err != nil {
			return err
		}
		if err := checkReceivable(p, in.Lines); err != nil {
			return err
		}

		number, err := NextNumber(ctx, tx, domain.NumberGoodsReceipt, now)
		if err != nil {
			return err
		}
		gr.Number = number
		if err := tx.Create(ctx, domain.CollectionGoodsReceipts, gr.ID, gr); err != nil {
			return err
		}

		for _, l := range in.Lines {
			line, _ := p.Item(l.LineNumber)
			item := domain.GoodsReceiptItem{
				ID:               newID(),
				GoodsReceiptID:   gr.ID,
				LineNumber:       l.LineNumber,
				Description:      line.Description,
				OrderedQuantity:  line.Quantity,
				ReceivedQuantity: l.ReceivedQuantity,
				Unit:             line.Unit,
				Condition:        l.Condition,
			}
			if err := tx.Create(ctx, domain.CollectionGoodsReceiptItems, item.ID, item); err != nil {
				return err
			}
			line.ReceivedQuantity = line.ReceivedQuantity.Add(l.ReceivedQuantity)
		}

		poFrom = p.Status
		if next := p.DeliveryStatus(); next != p.Status {
			if err := domain.Check(s.deps.Machines.PurchaseOrder, domain.EntityPurchaseOrder, p.Status, next); err != nil {
				return err
			}
			p.Status = next
		}
		p.Touch(actor.ID, now)
		po = p
		return tx.Set(ctx, domain.CollectionPurchaseOrders, p.ID, p)
	})
	if err != nil {
		return domain.GoodsReceipt{}, classify("create goods receipt", err)
	}

	grRef := domain.EntityRef{Type: domain.EntityGoodsReceipt, ID: gr.ID}
	s.deps.Effects.Dispatch(ctx, grRef,
		auditEvent(actor, "GOODS_RECEIPT_CREATED", grRef,
			"Goods receipt "+gr.Number+" recorded for purchase order "+po.Number,
			map[string]any{"number": gr.Number, "purchaseOrderId": po.ID, "lines": len(in.Lines)},
		),
		domain.CreateTask{Spec: domain.TaskSpec{
			UserID:   po.CreatedBy,
			Category: domain.TaskGoodsReceiptInspect,
			Entity:   grRef,
			Title:    fmt.Sprintf("Inspect goods receipt %s for %s", gr.Number, po.Number),
			Priority: domain.PriorityMedium,
		}},
	)
	if po.Status != poFrom {
		poRef := domain.EntityRef{Type: domain.EntityPurchaseOrder, ID: po.ID}
		s.deps.Effects.Dispatch(ctx, poRef, transitionAudit(actor, "PURCHASE_ORDER_DELIVERY_UPDATED", poRef, po.Number, poFrom, po.Status,
			map[string]any{"goodsReceiptId": gr.ID}))
	}
	return gr, nil
}

func validateReceiptLines(lines []ReceiptLineInput) error {
	if len(lines) == 0 {
		return domain.Invalid("lines", "at least one received line is required")
	}
	seen := make(map[int]bool, len(lines))
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if seen[l.LineNumber] {
			return domain.Invalid(field, "line %d is listed more than once", l.LineNumber)
		}
		seen[l.LineNumber] = true
		if !l.ReceivedQuantity.IsPositive() {
			return domain.Invalid(field, "received quantity must be positive")
		}
	}
	return nil
}

// checkReceivable verifies that po is open for deliveries and that no line
// receives more than is outstanding.
func checkReceivable(po domain.PurchaseOrder, lines []ReceiptLineInput) error {
	if po.Status != domain.POApproved && po.Status != domain.POPartiallyDelivered {
		return &domain.InvalidTransitionError{
			Entity: domain.EntityPurchaseOrder,
			From:   string(po.Status),
			To:     string(domain.PODelivered),
			Reason: fmt.Sprintf("Cannot receive goods for purchase order with status: %s", po.Status),
		}
	}
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		item, ok := po.Item(l.LineNumber)
		if !ok {
			return domain.Invalid(field, "purchase order %s has no line %d", po.Number, l.LineNumber)
		}
		if l.ReceivedQuantity.GreaterThan(item.RemainingQuantity()) {
			return &domain.ValidationError{Field: field, Reason: "Over-delivery not allowed"}
		}
	}
	return nil
}

// StartInspection begins inspecting a pending receipt.
func (s *GoodsReceiptService) StartInspection(ctx context.Context, actor domain.Actor, id string) (domain.GoodsReceipt, error) {
	return s.move(ctx, actor, id, domain.GRInProgress, "start inspection", "GOODS_RECEIPT_INSPECTION_STARTED", nil)
}

// Complete closes the inspection and the inspection task.
func (s *GoodsReceiptService) Complete(ctx context.Context, actor domain.Actor, id string) (domain.GoodsReceipt, error) {
	mutate := func(_ context.Context, _ domain.Transaction, g *domain.GoodsReceipt) error {
		now := s.deps.now()
		g.CompletedAt = &now
		return nil
	}
	gr, err := s.move(ctx, actor, id, domain.GRCompleted, "complete goods receipt", "GOODS_RECEIPT_COMPLETED", mutate)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	ref := domain.EntityRef{Type: domain.EntityGoodsReceipt, ID: gr.ID}
	s.deps.Effects.Dispatch(ctx, ref, domain.CompleteTask{
		Entity: ref, Category: domain.TaskGoodsReceiptInspect, ActorID: actor.ID, Success: true,
	})
	return gr, nil
}

// Cancel voids a receipt. Quantities already booked on the purchase order
// stay, as delivery status never moves backwards.
func (s *GoodsReceiptService) Cancel(ctx context.Context, actor domain.Actor, id string) (domain.GoodsReceipt, error) {
	gr, err := s.move(ctx, actor, id, domain.GRCancelled, "cancel goods receipt", "GOODS_RECEIPT_CANCELLED", nil)
	if err != nil {
		return domain.GoodsReceipt{}, err
	}
	ref := domain.EntityRef{Type: domain.EntityGoodsReceipt, ID: gr.ID}
	s.deps.Effects.Dispatch(ctx, ref, domain.CompleteTask{
		Entity: ref, Category: domain.TaskGoodsReceiptInspect, ActorID: actor.ID, Success: false,
	})
	return gr, nil
}

func (s *GoodsReceiptService) move(
	ctx context.Context,
	actor domain.Actor,
	id string,
	to domain.GoodsReceiptStatus,
	action, eventType string,
	mutate func(ctx context.Context, tx domain.Transaction, g *domain.GoodsReceipt) error,
) (domain.GoodsReceipt, error) {
	if err := RequirePermission(actor, domain.PermReceiveGoods, action); err != nil {
		return domain.GoodsReceipt{}, err
	}
	gr, from, err := s.life.transition(ctx, s.deps, step[domain.GoodsReceipt, domain.GoodsReceiptStatus]{
		id: id, to: to, actor: actor, mutate: mutate,
	})
	if err != nil {
		return domain.GoodsReceipt{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityGoodsReceipt, ID: gr.ID}
	s.deps.Effects.Dispatch(ctx, ref, transitionAudit(actor, eventType, ref, gr.Number, from, gr.Status, nil))
	return gr, nil
}

// Get returns a goods receipt.
func (s *GoodsReceiptService) Get(ctx context.Context, id string) (domain.GoodsReceipt, error) {
	return load[domain.GoodsReceipt](ctx, s.deps.Store, domain.EntityGoodsReceipt, domain.CollectionGoodsReceipts, id)
}

// ListItems returns the lines of a goods receipt in line order.
func (s *GoodsReceiptService) ListItems(ctx context.Context, id string) ([]domain.GoodsReceiptItem, error) {
	return listReceiptItems(ctx, s.deps.Store, id)
}

func listReceiptItems(ctx context.Context, r domain.DocumentReader, goodsReceiptID string) ([]domain.GoodsReceiptItem, error) {
	return queryAll[domain.GoodsReceiptItem](ctx, r, domain.Query{
		Collection: domain.CollectionGoodsReceiptItems,
		Filters:    []domain.Filter{domain.Where("goodsReceiptId", goodsReceiptID)},
		OrderBy:    "lineNumber",
	})
}
