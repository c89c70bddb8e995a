package domain

import "github.com/shopspring/decimal"

// OfferStatus is the lifecycle state of a vendor offer.
type OfferStatus string

const (
	OfferUploaded    OfferStatus = "UPLOADED"
	OfferUnderReview OfferStatus = "UNDER_REVIEW"
	OfferEvaluated   OfferStatus = "EVALUATED"
	OfferSelected    OfferStatus = "SELECTED"
	OfferRejected    OfferStatus = "REJECTED"
	OfferWithdrawn   OfferStatus = "WITHDRAWN"
)

// OfferTransitions is the offer state machine.
var OfferTransitions = TransitionTable[OfferStatus]{
	Entity:  EntityOffer,
	Initial: OfferUploaded,
	States:  []OfferStatus{OfferUploaded, OfferUnderReview, OfferEvaluated, OfferSelected, OfferRejected, OfferWithdrawn},
	Edges: map[OfferStatus][]OfferStatus{
		OfferUploaded:    {OfferUnderReview, OfferSelected, OfferRejected, OfferWithdrawn},
		OfferUnderReview: {OfferEvaluated, OfferSelected, OfferRejected, OfferWithdrawn},
		OfferEvaluated:   {OfferSelected, OfferRejected, OfferWithdrawn},
		OfferSelected:    {},
		OfferRejected:    {},
		OfferWithdrawn:   {},
	},
	Reasons: map[OfferStatus]string{
		OfferSelected: "Cannot select offer with status: %s",
	},
}

// Offer is a vendor's response to an RFQ. Its line items live in the
// offerItems collection.
type Offer struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	RFQID           string          `json:"rfqId"`
	VendorID        string          `json:"vendorId"`
	VendorName      string          `json:"vendorName"`
	Status          OfferStatus     `json:"status"`
	Currency        string          `json:"currency"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	Total           decimal.Decimal `json:"total"`
	Score           *int            `json:"score,omitempty"`
	EvaluationNotes string          `json:"evaluationNotes,omitempty"`
	Stamps
}

// Live reports whether the offer still counts towards its RFQ.
func (o Offer) Live() bool {
	return o.Status != OfferWithdrawn
}

// OfferItem is one line of an offer, stored as its own document.
type OfferItem struct {
	ID      string `json:"id"`
	OfferID string `json:"offerId"`
	LineItem
}
