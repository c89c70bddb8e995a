package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProposalStatus is the approval state of a client proposal.
type ProposalStatus string

const (
	ProposalDraft           ProposalStatus = "DRAFT"
	ProposalPendingApproval ProposalStatus = "PENDING_APPROVAL"
	ProposalApproved        ProposalStatus = "APPROVED"
	ProposalRejected        ProposalStatus = "REJECTED"
	ProposalSubmitted       ProposalStatus = "SUBMITTED"
	ProposalAccepted        ProposalStatus = "ACCEPTED"
	ProposalWithdrawn       ProposalStatus = "WITHDRAWN"
)

// ProposalTransitions is the proposal state machine. PENDING_APPROVAL back to
// DRAFT is the request-changes path.
var ProposalTransitions = TransitionTable[ProposalStatus]{
	Entity:  EntityProposal,
	Initial: ProposalDraft,
	States: []ProposalStatus{
		ProposalDraft, ProposalPendingApproval, ProposalApproved, ProposalRejected,
		ProposalSubmitted, ProposalAccepted, ProposalWithdrawn,
	},
	Edges: map[ProposalStatus][]ProposalStatus{
		ProposalDraft:           {ProposalPendingApproval, ProposalWithdrawn},
		ProposalPendingApproval: {ProposalApproved, ProposalRejected, ProposalDraft},
		ProposalApproved:        {ProposalSubmitted},
		ProposalSubmitted:       {ProposalAccepted, ProposalRejected},
		ProposalRejected:        {},
		ProposalAccepted:        {},
		ProposalWithdrawn:       {},
	},
	Reasons: map[ProposalStatus]string{
		ProposalPendingApproval: "Cannot submit proposal with status: %s",
		ProposalApproved:        "Cannot approve proposal with status: %s",
		ProposalSubmitted:       "Cannot send proposal with status: %s",
		ProposalAccepted:        "Cannot accept proposal with status: %s",
		ProposalWithdrawn:       "Cannot withdraw proposal with status: %s",
	},
}

// ApprovalAction is the decision recorded by a reviewer.
type ApprovalAction string

const (
	ApprovalApproved         ApprovalAction = "APPROVED"
	ApprovalRejected         ApprovalAction = "REJECTED"
	ApprovalRequestedChanges ApprovalAction = "REQUESTED_CHANGES"
)

// ApprovalRecord is one entry of a proposal's append-only review history.
type ApprovalRecord struct {
	ActorID   string         `json:"actorId"`
	ActorName string         `json:"actorName"`
	Action    ApprovalAction `json:"action"`
	Comment   string         `json:"comment,omitempty"`
	At        time.Time      `json:"at"`
}

// Proposal is a priced offer prepared for a client.
type Proposal struct {
	ID          string           `json:"id"`
	Number      string           `json:"number"`
	Title       string           `json:"title"`
	ClientName  string           `json:"clientName"`
	Description string           `json:"description,omitempty"`
	Status      ProposalStatus   `json:"status"`
	Currency    string           `json:"currency"`
	Items       []LineItem       `json:"items"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	TaxAmount   decimal.Decimal  `json:"taxAmount"`
	Total       decimal.Decimal  `json:"total"`
	ValidUntil  *time.Time       `json:"validUntil,omitempty"`
	ApproverIDs []string         `json:"approverIds"`
	SubmittedBy string           `json:"submittedBy,omitempty"`
	SubmittedAt *time.Time       `json:"submittedAt,omitempty"`
	SentAt      *time.Time       `json:"sentAt,omitempty"`
	Approvals   []ApprovalRecord `json:"approvals"`
	Stamps
}

// ProposalPatch changes a draft proposal. Absent fields are left alone.
type ProposalPatch struct {
	Title       Optional[string]
	ClientName  Optional[string]
	Description Optional[string]
	Currency    Optional[string]
	ValidUntil  Optional[*time.Time]
	ApproverIDs Optional[[]string]
	Items       Optional[[]LineItemInput]
}

// Apply writes the present fields into p, recomputing totals when items change.
func (patch ProposalPatch) Apply(p *Proposal) error {
	if v, ok := patch.Title.Get(); ok && v == "" {
		return Invalid("title", "must not be empty")
	}
	if v, ok := patch.ClientName.Get(); ok && v == "" {
		return Invalid("clientName", "must not be empty")
	}
	if in, ok := patch.Items.Get(); ok {
		items, err := NewLineItems(in)
		if err != nil {
			return err
		}
		p.Items = items
		p.Subtotal, p.TaxAmount, p.Total = Totals(items)
	}
	patch.Title.Apply(&p.Title)
	patch.ClientName.Apply(&p.ClientName)
	patch.Description.Apply(&p.Description)
	patch.Currency.Apply(&p.Currency)
	patch.ValidUntil.Apply(&p.ValidUntil)
	patch.ApproverIDs.Apply(&p.ApproverIDs)
	return nil
}
