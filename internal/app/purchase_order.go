package app

import (
	"context"
	"strings"

	"github.com/neomorfeo/procura/internal/domain"
)

// CreatePurchaseOrderInput is the payload of PurchaseOrderService.Create.
type CreatePurchaseOrderInput struct {
	VendorID   string
	VendorName string
	Currency   string
	Items      []domain.LineItemInput
}

// PurchaseOrderService manages approved purchase orders, the parents of
// goods receipts.
type PurchaseOrderService struct {
	deps Deps
	life lifecycle[domain.PurchaseOrder, domain.PurchaseOrderStatus]
}

// NewPurchaseOrderService creates the service.
func NewPurchaseOrderService(deps Deps) *PurchaseOrderService {
	return &PurchaseOrderService{
		deps: deps,
		life: lifecycle[domain.PurchaseOrder, domain.PurchaseOrderStatus]{
			entity:     domain.EntityPurchaseOrder,
			collection: domain.CollectionPurchaseOrders,
			validator:  deps.Machines.PurchaseOrder,
			status:     func(p *domain.PurchaseOrder) *domain.PurchaseOrderStatus { return &p.Status },
			stamps:     func(p *domain.PurchaseOrder) *domain.Stamps { return &p.Stamps },
		},
	}
}

// Create records an approved purchase order.
func (s *PurchaseOrderService) Create(ctx context.Context, actor domain.Actor, in CreatePurchaseOrderInput) (domain.PurchaseOrder, error) {
	if err := RequirePermission(actor, domain.PermManagePurchaseOrders, "create purchase order"); err != nil {
		return domain.PurchaseOrder{}, err
	}
	if strings.TrimSpace(in.VendorID) == "" {
		return domain.PurchaseOrder{}, domain.Invalid("vendorId", "is required")
	}
	lines, err := domain.NewLineItems(in.Items)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	now := s.deps.now()
	po := domain.PurchaseOrder{
		ID:         newID(),
		VendorID:   in.VendorID,
		VendorName: in.VendorName,
		Status:     domain.POApproved,
		Currency:   defaultCurrency(in.Currency),
		Stamps:     domain.NewStamps(actor.ID, now),
	}
	for _, l := range lines {
		po.Items = append(po.Items, domain.PurchaseOrderItem{LineItem: l})
	}
	po.Subtotal, po.TaxAmount, po.Total = domain.Totals(lines)

	err = s.deps.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		number, err := NextNumber(ctx, tx, domain.NumberPurchaseOrder, now)
		if err != nil {
			return err
		}
		po.Number = number
		return tx.Create(ctx, domain.CollectionPurchaseOrders, po.ID, po)
	})
	if err != nil {
		return domain.PurchaseOrder{}, classify("create purchase order", err)
	}

	ref := domain.EntityRef{Type: domain.EntityPurchaseOrder, ID: po.ID}
	s.deps.Effects.Dispatch(ctx, ref, auditEvent(actor, "PURCHASE_ORDER_CREATED", ref,
		"Purchase order "+po.Number+" created",
		map[string]any{"number": po.Number, "vendorId": po.VendorID, "total": po.Total.String()},
	))
	return po, nil
}

// Cancel cancels a purchase order that has not received any goods.
func (s *PurchaseOrderService) Cancel(ctx context.Context, actor domain.Actor, id string) (domain.PurchaseOrder, error) {
	if err := RequirePermission(actor, domain.PermManagePurchaseOrders, "cancel purchase order"); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, from, err := s.life.transition(ctx, s.deps, step[domain.PurchaseOrder, domain.PurchaseOrderStatus]{
		id: id, to: domain.POCancelled, actor: actor,
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityPurchaseOrder, ID: po.ID}
	s.deps.Effects.Dispatch(ctx, ref, transitionAudit(actor, "PURCHASE_ORDER_CANCELLED", ref, po.Number, from, po.Status, nil))
	return po, nil
}

// Get returns a purchase order.
func (s *PurchaseOrderService) Get(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	return load[domain.PurchaseOrder](ctx, s.deps.Store, domain.EntityPurchaseOrder, domain.CollectionPurchaseOrders, id)
}

func defaultCurrency(c string) string {
	if c == "" {
		return "EUR"
	}
	return strings.ToUpper(c)
}
