package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GoodsReceiptStatus is the inspection state of a goods receipt.
type GoodsReceiptStatus string

const (
	GRPending    GoodsReceiptStatus = "PENDING"
	GRInProgress GoodsReceiptStatus = "IN_PROGRESS"
	GRCompleted  GoodsReceiptStatus = "COMPLETED"
	GRCancelled  GoodsReceiptStatus = "CANCELLED"
)

// GoodsReceiptTransitions is the goods receipt state machine.
var GoodsReceiptTransitions = TransitionTable[GoodsReceiptStatus]{
	Entity:  EntityGoodsReceipt,
	Initial: GRPending,
	States:  []GoodsReceiptStatus{GRPending, GRInProgress, GRCompleted, GRCancelled},
	Edges: map[GoodsReceiptStatus][]GoodsReceiptStatus{
		GRPending:    {GRInProgress, GRCancelled},
		GRInProgress: {GRCompleted, GRCancelled},
		GRCompleted:  {},
		GRCancelled:  {},
	},
	Reasons: map[GoodsReceiptStatus]string{
		GRInProgress: "Cannot start inspection of GR with status: %s",
		GRCompleted:  "Cannot complete GR with status: %s",
		GRCancelled:  "Cannot cancel GR with status: %s",
	},
}

// GoodsReceipt records a delivery against a purchase order. Its lines live in
// the goodsReceiptItems collection.
type GoodsReceipt struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	PurchaseOrderID string             `json:"purchaseOrderId"`
	Status          GoodsReceiptStatus `json:"status"`
	ReceivedBy      string             `json:"receivedBy"`
	ReceivedAt      time.Time          `json:"receivedAt"`
	Notes           string             `json:"notes,omitempty"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
	Stamps
}

// GoodsReceiptItem is the quantity received for one purchase order line.
type GoodsReceiptItem struct {
	ID               string          `json:"id"`
	GoodsReceiptID   string          `json:"goodsReceiptId"`
	LineNumber       int             `json:"lineNumber"`
	Description      string          `json:"description"`
	OrderedQuantity  decimal.Decimal `json:"orderedQuantity"`
	ReceivedQuantity decimal.Decimal `json:"receivedQuantity"`
	Unit             string          `json:"unit"`
	Condition        string          `json:"condition,omitempty"`
}
