package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/procura/internal/domain"
)

// CreateMatchInput is the payload of MatchService.Create.
type CreateMatchInput struct {
	PurchaseOrderID string
	GoodsReceiptID  string
	InvoiceNumber   string
	Lines           []domain.InvoiceLine
	// Tolerance is the allowed unit price variance in percent. Nil means
	// domain.DefaultPriceTolerance.
	Tolerance *decimal.Decimal
}

// MatchService reconciles purchase orders, goods receipts and invoices.
type MatchService struct {
	deps Deps
	life lifecycle[domain.ThreeWayMatch, domain.MatchStatus]
}

// NewMatchService creates the service.
func NewMatchService(deps Deps) *MatchService {
	return &MatchService{
		deps: deps,
		life: lifecycle[domain.ThreeWayMatch, domain.MatchStatus]{
			entity:     domain.EntityMatch,
			collection: domain.CollectionMatches,
			validator:  deps.Machines.Match,
			status:     func(m *domain.ThreeWayMatch) *domain.MatchStatus { return &m.Status },
			stamps:     func(m *domain.ThreeWayMatch) *domain.Stamps { return &m.Stamps },
		},
	}
}

// Create compares an invoice with the purchase order and a completed goods
// receipt. The match starts MATCHED when every line agrees, DISCREPANCY
// otherwise.
func (s *MatchService) Create(ctx context.Context, actor domain.Actor, in CreateMatchInput) (domain.ThreeWayMatch, error) {
	if err := RequirePermission(actor, domain.PermReconcile, "reconcile invoice"); err != nil {
		return domain.ThreeWayMatch{}, err
	}
	if strings.TrimSpace(in.InvoiceNumber) == "" {
		return domain.ThreeWayMatch{}, domain.Invalid("invoiceNumber", "is required")
	}
	tolerance := domain.DefaultPriceTolerance
	if in.Tolerance != nil {
		if in.Tolerance.IsNegative() {
			return domain.ThreeWayMatch{}, domain.Invalid("tolerance", "must not be negative")
		}
		tolerance = *in.Tolerance
	}
	invoice, err := indexInvoice(in.Lines)
	if err != nil {
		return domain.ThreeWayMatch{}, err
	}

	po, err := load[domain.PurchaseOrder](ctx, s.deps.Store, domain.EntityPurchaseOrder, domain.CollectionPurchaseOrders, in.PurchaseOrderID)
	if err != nil {
		return domain.ThreeWayMatch{}, err
	}
	gr, err := load[domain.GoodsReceipt](ctx, s.deps.Store, domain.EntityGoodsReceipt, domain.CollectionGoodsReceipts, in.GoodsReceiptID)
	if err != nil {
		return domain.ThreeWayMatch{}, err
	}
	if gr.PurchaseOrderID != po.ID {
		return domain.ThreeWayMatch{}, domain.Invalid("goodsReceiptId", "goods receipt %s does not belong to purchase order %s", gr.Number, po.Number)
	}
	if gr.Status != domain.GRCompleted {
		return domain.ThreeWayMatch{}, &domain.InvalidTransitionError{
			Entity: domain.EntityGoodsReceipt,
			From:   string(gr.Status),
			To:     string(gr.Status),
			Reason: fmt.Sprintf("Cannot reconcile GR with status: %s", gr.Status),
		}
	}
	received, err := listReceiptItems(ctx, s.deps.Store, gr.ID)
	if err != nil {
		return domain.ThreeWayMatch{}, err
	}

	lines, total, err := compareLines(po, received, invoice, tolerance)
	if err != nil {
		return domain.ThreeWayMatch{}, err
	}

	now := s.deps.now()
	m := domain.ThreeWayMatch{
		ID:              newID(),
		PurchaseOrderID: po.ID,
		GoodsReceiptID:  gr.ID,
		InvoiceNumber:   strings.TrimSpace(in.InvoiceNumber),
		Status:          domain.MatchMatched,
		Tolerance:       tolerance,
		Lines:           lines,
		InvoiceTotal:    total,
		Stamps:          domain.NewStamps(actor.ID, now),
	}
	for _, l := range lines {
		if !l.Matched {
			m.Status = domain.MatchDiscrepancy
			break
		}
	}

	err = s.deps.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		number, err := NextNumber(ctx, tx, domain.NumberMatch, now)
		if err != nil {
			return err
		}
		m.Number = number
		return tx.Create(ctx, domain.CollectionMatches, m.ID, m)
	})
	if err != nil {
		return domain.ThreeWayMatch{}, classify("create three-way match", err)
	}

	ref := domain.EntityRef{Type: domain.EntityMatch, ID: m.ID}
	effects := []domain.Effect{auditEvent(actor, "THREE_WAY_MATCH_CREATED", ref,
		fmt.Sprintf("Invoice %s reconciled against %s and %s: %s", m.InvoiceNumber, po.Number, gr.Number, m.Status),
		map[string]any{"number": m.Number, "status": string(m.Status), "invoiceTotal": total.String()},
	)}
	// The purchase order owner signs off, unless they reconciled it themselves.
	if po.CreatedBy != "" && po.CreatedBy != actor.ID {
		effects = append(effects, domain.CreateTask{Spec: domain.TaskSpec{
			UserID:   po.CreatedBy,
			Category: domain.TaskMatchApproval,
			Entity:   ref,
			Title:    fmt.Sprintf("Review three-way match %s (%s)", m.Number, m.Status),
			Priority: matchPriority(m.Status),
		}})
	}
	s.deps.Effects.Dispatch(ctx, ref, effects...)
	return m, nil
}

func indexInvoice(lines []domain.InvoiceLine) (map[int]domain.InvoiceLine, error) {
	if len(lines) == 0 {
		return nil, domain.Invalid("lines", "at least one invoice line is required")
	}
	out := make(map[int]domain.InvoiceLine, len(lines))
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if _, dup := out[l.LineNumber]; dup {
			return nil, domain.Invalid(field, "line %d is invoiced more than once", l.LineNumber)
		}
		if l.Quantity.IsNegative() || l.UnitPrice.IsNegative() {
			return nil, domain.Invalid(field, "quantity and unit price must not be negative")
		}
		out[l.LineNumber] = l
	}
	return out, nil
}

// compareLines builds one match line for every purchase order line that was
// received or invoiced.
func compareLines(po domain.PurchaseOrder, received []domain.GoodsReceiptItem, invoice map[int]domain.InvoiceLine, tolerance decimal.Decimal) ([]domain.MatchLine, decimal.Decimal, error) {
	receivedByLine := make(map[int]decimal.Decimal, len(received))
	for _, r := range received {
		receivedByLine[r.LineNumber] = receivedByLine[r.LineNumber].Add(r.ReceivedQuantity)
	}
	for n := range invoice {
		if _, ok := po.Item(n); !ok {
			return nil, decimal.Zero, domain.Invalid("lines", "purchase order %s has no line %d", po.Number, n)
		}
	}

	var (
		lines []domain.MatchLine
		total decimal.Decimal
	)
	for _, item := range po.Items {
		got, wasReceived := receivedByLine[item.LineNumber]
		inv, wasInvoiced := invoice[item.LineNumber]
		if !wasReceived && !wasInvoiced {
			continue
		}
		lines = append(lines, domain.CompareLine(domain.MatchLine{
			LineNumber:        item.LineNumber,
			Description:       item.Description,
			OrderedQuantity:   item.Quantity,
			ReceivedQuantity:  got,
			InvoicedQuantity:  inv.Quantity,
			OrderedUnitPrice:  item.UnitPrice,
			InvoicedUnitPrice: inv.UnitPrice,
		}, tolerance))
		total = total.Add(inv.Quantity.Mul(inv.UnitPrice).Round(2))
	}
	return lines, total, nil
}

func matchPriority(status domain.MatchStatus) domain.TaskPriority {
	if status == domain.MatchDiscrepancy {
		return domain.PriorityHigh
	}
	return domain.PriorityMedium
}

// Approve accepts the invoice. A match with discrepancies additionally needs
// the override permission.
func (s *MatchService) Approve(ctx context.Context, actor domain.Actor, id, note string) (domain.ThreeWayMatch, error) {
	guard := func(m domain.ThreeWayMatch) error {
		if m.Status == domain.MatchDiscrepancy {
			return RequirePermission(actor, domain.PermOverrideDiscrepancy, "approve match with discrepancies")
		}
		return nil
	}
	return s.decide(ctx, actor, id, note, domain.MatchApproved, "approve match", "THREE_WAY_MATCH_APPROVED", guard)
}

// Reject refuses the invoice.
func (s *MatchService) Reject(ctx context.Context, actor domain.Actor, id, note string) (domain.ThreeWayMatch, error) {
	return s.decide(ctx, actor, id, note, domain.MatchRejected, "reject match", "THREE_WAY_MATCH_REJECTED", nil)
}

func (s *MatchService) decide(
	ctx context.Context,
	actor domain.Actor,
	id, note string,
	to domain.MatchStatus,
	action, eventType string,
	extra func(m domain.ThreeWayMatch) error,
) (domain.ThreeWayMatch, error) {
	if err := RequirePermission(actor, domain.PermApproveMatches, action); err != nil {
		return domain.ThreeWayMatch{}, err
	}
	guard := func(m domain.ThreeWayMatch) error {
		if err := PreventSelfApproval(actor.ID, m.CreatedBy, action); err != nil {
			return err
		}
		if extra != nil {
			return extra(m)
		}
		return nil
	}
	mutate := func(_ context.Context, _ domain.Transaction, m *domain.ThreeWayMatch) error {
		m.DecidedBy = actor.ID
		m.DecisionNote = note
		return nil
	}
	m, from, err := s.life.transition(ctx, s.deps, step[domain.ThreeWayMatch, domain.MatchStatus]{
		id: id, to: to, actor: actor, guard: guard, mutate: mutate,
	})
	if err != nil {
		return domain.ThreeWayMatch{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityMatch, ID: m.ID}
	s.deps.Effects.Dispatch(ctx, ref,
		transitionAudit(actor, eventType, ref, m.Number, from, m.Status, map[string]any{"note": note}),
		domain.CompleteTask{
			Entity:   ref,
			Category: domain.TaskMatchApproval,
			ActorID:  actor.ID,
			Success:  to == domain.MatchApproved,
		},
	)
	return m, nil
}

// Get returns a three-way match.
func (s *MatchService) Get(ctx context.Context, id string) (domain.ThreeWayMatch, error) {
	return load[domain.ThreeWayMatch](ctx, s.deps.Store, domain.EntityMatch, domain.CollectionMatches, id)
}
