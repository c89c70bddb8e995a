package domain

import "time"

// RFQStatus is the lifecycle state of a request for quotation.
type RFQStatus string

const (
	RFQDraft           RFQStatus = "DRAFT"
	RFQIssued          RFQStatus = "ISSUED"
	RFQOffersReceived  RFQStatus = "OFFERS_RECEIVED"
	RFQUnderEvaluation RFQStatus = "UNDER_EVALUATION"
	RFQCompleted       RFQStatus = "COMPLETED"
	RFQCancelled       RFQStatus = "CANCELLED"
)

// RFQTransitions is the RFQ state machine.
var RFQTransitions = TransitionTable[RFQStatus]{
	Entity:  EntityRFQ,
	Initial: RFQDraft,
	States:  []RFQStatus{RFQDraft, RFQIssued, RFQOffersReceived, RFQUnderEvaluation, RFQCompleted, RFQCancelled},
	Edges: map[RFQStatus][]RFQStatus{
		RFQDraft:           {RFQIssued, RFQCancelled},
		RFQIssued:          {RFQOffersReceived, RFQCancelled},
		RFQOffersReceived:  {RFQUnderEvaluation, RFQCompleted, RFQCancelled},
		RFQUnderEvaluation: {RFQCompleted, RFQCancelled},
		RFQCompleted:       {},
		RFQCancelled:       {},
	},
	Reasons: map[RFQStatus]string{
		RFQIssued:    "Cannot issue RFQ with status: %s",
		RFQCompleted: "Cannot complete RFQ with status: %s",
		RFQCancelled: "Cannot cancel RFQ with status: %s",
	},
}

// RFQ is a request for quotation sent to a set of vendors.
type RFQ struct {
	ID               string     `json:"id"`
	Number           string     `json:"number"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Status           RFQStatus  `json:"status"`
	InvitedVendorIDs []string   `json:"invitedVendorIds"`
	OffersReceived   int        `json:"offersReceived"`
	SelectedOfferID  string     `json:"selectedOfferId,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Items            []LineItem `json:"items"`
	Stamps
}

// Invited reports whether vendorID is on the RFQ's vendor list.
func (r RFQ) Invited(vendorID string) bool {
	for _, v := range r.InvitedVendorIDs {
		if v == vendorID {
			return true
		}
	}
	return false
}

// AcceptsOffers reports whether offers may still be recorded against the RFQ.
func (r RFQ) AcceptsOffers() bool {
	return r.Status == RFQIssued || r.Status == RFQOffersReceived
}
