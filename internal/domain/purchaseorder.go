package domain

import "github.com/shopspring/decimal"

// PurchaseOrderStatus is the delivery state of a purchase order.
type PurchaseOrderStatus string

const (
	POApproved           PurchaseOrderStatus = "APPROVED"
	POPartiallyDelivered PurchaseOrderStatus = "PARTIALLY_DELIVERED"
	PODelivered          PurchaseOrderStatus = "DELIVERED"
	POCancelled          PurchaseOrderStatus = "CANCELLED"
)

// PurchaseOrderTransitions is the purchase order state machine.
var PurchaseOrderTransitions = TransitionTable[PurchaseOrderStatus]{
	Entity:  EntityPurchaseOrder,
	Initial: POApproved,
	States:  []PurchaseOrderStatus{POApproved, POPartiallyDelivered, PODelivered, POCancelled},
	Edges: map[PurchaseOrderStatus][]PurchaseOrderStatus{
		POApproved:           {POPartiallyDelivered, PODelivered, POCancelled},
		POPartiallyDelivered: {PODelivered},
		PODelivered:          {},
		POCancelled:          {},
	},
}

// PurchaseOrderItem is an ordered line and how much of it has arrived.
type PurchaseOrderItem struct {
	LineItem
	ReceivedQuantity decimal.Decimal `json:"receivedQuantity"`
}

// RemainingQuantity is what may still be received against the line.
func (i PurchaseOrderItem) RemainingQuantity() decimal.Decimal {
	return i.Quantity.Sub(i.ReceivedQuantity)
}

// PurchaseOrder is the parent of goods receipts and three-way matches.
type PurchaseOrder struct {
	ID         string              `json:"id"`
	Number     string              `json:"number"`
	VendorID   string              `json:"vendorId"`
	VendorName string              `json:"vendorName"`
	Status     PurchaseOrderStatus `json:"status"`
	Currency   string              `json:"currency"`
	Items      []PurchaseOrderItem `json:"items"`
	Subtotal   decimal.Decimal     `json:"subtotal"`
	TaxAmount  decimal.Decimal     `json:"taxAmount"`
	Total      decimal.Decimal     `json:"total"`
	Stamps
}

// Item returns the line numbered lineNumber.
func (p *PurchaseOrder) Item(lineNumber int) (*PurchaseOrderItem, bool) {
	for i := range p.Items {
		if p.Items[i].LineNumber == lineNumber {
			return &p.Items[i], true
		}
	}
	return nil, false
}

// DeliveryStatus derives the status implied by received quantities.
func (p PurchaseOrder) DeliveryStatus() PurchaseOrderStatus {
	received := false
	complete := true
	for _, it := range p.Items {
		if it.ReceivedQuantity.IsPositive() {
			received = true
		}
		if it.RemainingQuantity().IsPositive() {
			complete = false
		}
	}
	switch {
	case complete:
		return PODelivered
	case received:
		return POPartiallyDelivered
	default:
		return POApproved
	}
}
