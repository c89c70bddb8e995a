package domain

import "github.com/shopspring/decimal"

// MatchStatus is the reconciliation state of a three-way match.
type MatchStatus string

const (
	MatchMatched     MatchStatus = "MATCHED"
	MatchDiscrepancy MatchStatus = "DISCREPANCY"
	MatchApproved    MatchStatus = "APPROVED"
	MatchRejected    MatchStatus = "REJECTED"
)

// MatchTransitions is the three-way match state machine. A match is created
// directly in MATCHED or DISCREPANCY.
var MatchTransitions = TransitionTable[MatchStatus]{
	Entity:  EntityMatch,
	Initial: MatchMatched,
	States:  []MatchStatus{MatchMatched, MatchDiscrepancy, MatchApproved, MatchRejected},
	Edges: map[MatchStatus][]MatchStatus{
		MatchMatched:     {MatchApproved, MatchRejected},
		MatchDiscrepancy: {MatchApproved, MatchRejected},
		MatchApproved:    {},
		MatchRejected:    {},
	},
	Reasons: map[MatchStatus]string{
		MatchApproved: "Cannot approve match with status: %s",
		MatchRejected: "Cannot reject match with status: %s",
	},
}

// DefaultPriceTolerance is the allowed unit price variance, in percent.
var DefaultPriceTolerance = decimal.NewFromInt(2)

// InvoiceLine is one line of the vendor invoice being reconciled.
type InvoiceLine struct {
	LineNumber int             `json:"lineNumber"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}

// MatchLine compares one purchase order line with what was received and billed.
type MatchLine struct {
	LineNumber        int             `json:"lineNumber"`
	Description       string          `json:"description"`
	OrderedQuantity   decimal.Decimal `json:"orderedQuantity"`
	ReceivedQuantity  decimal.Decimal `json:"receivedQuantity"`
	InvoicedQuantity  decimal.Decimal `json:"invoicedQuantity"`
	OrderedUnitPrice  decimal.Decimal `json:"orderedUnitPrice"`
	InvoicedUnitPrice decimal.Decimal `json:"invoicedUnitPrice"`
	QuantityVariance  decimal.Decimal `json:"quantityVariance"`
	PriceVariancePct  decimal.Decimal `json:"priceVariancePct"`
	Matched           bool            `json:"matched"`
}

// CompareLine fills the variances of l and reports whether it is within tolerance.
// Quantities must agree exactly. The invoiced price may differ from the ordered
// price by at most tolerance percent.
func CompareLine(l MatchLine, tolerance decimal.Decimal) MatchLine {
	l.QuantityVariance = l.InvoicedQuantity.Sub(l.ReceivedQuantity)
	if l.OrderedUnitPrice.IsZero() {
		l.PriceVariancePct = decimal.Zero
		if !l.InvoicedUnitPrice.IsZero() {
			l.PriceVariancePct = hundred
		}
	} else {
		l.PriceVariancePct = l.InvoicedUnitPrice.Sub(l.OrderedUnitPrice).
			Div(l.OrderedUnitPrice).Mul(hundred).Round(2)
	}
	l.Matched = l.QuantityVariance.IsZero() && l.PriceVariancePct.Abs().LessThanOrEqual(tolerance)
	return l
}

// ThreeWayMatch reconciles a purchase order, a completed goods receipt and an invoice.
type ThreeWayMatch struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	PurchaseOrderID string          `json:"purchaseOrderId"`
	GoodsReceiptID  string          `json:"goodsReceiptId"`
	InvoiceNumber   string          `json:"invoiceNumber"`
	Status          MatchStatus     `json:"status"`
	Tolerance       decimal.Decimal `json:"tolerance"`
	Lines           []MatchLine     `json:"lines"`
	InvoiceTotal    decimal.Decimal `json:"invoiceTotal"`
	DecidedBy       string          `json:"decidedBy,omitempty"`
	DecisionNote    string          `json:"decisionNote,omitempty"`
	Stamps
}
