package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/procura/internal/domain"
)

// CreateProposalInput is the payload of ProposalService.Create.
type CreateProposalInput struct {
	Title       string
	ClientName  string
	Description string
	Currency    string
	ValidUntil  *time.Time
	ApproverIDs []string
	Items       []domain.LineItemInput
}

// ProposalService prepares client proposals and runs their internal approval.
type ProposalService struct {
	deps Deps
	life lifecycle[domain.Proposal, domain.ProposalStatus]
}

// NewProposalService creates the service.
func NewProposalService(deps Deps) *ProposalService {
	return &ProposalService{
		deps: deps,
		life: lifecycle[domain.Proposal, domain.ProposalStatus]{
			entity:     domain.EntityProposal,
			collection: domain.CollectionProposals,
			validator:  deps.Machines.Proposal,
			status:     func(p *domain.Proposal) *domain.ProposalStatus { return &p.Status },
			stamps:     func(p *domain.Proposal) *domain.Stamps { return &p.Stamps },
		},
	}
}

// Create drafts a proposal.
func (s *ProposalService) Create(ctx context.Context, actor domain.Actor, in CreateProposalInput) (domain.Proposal, error) {
	if err := RequirePermission(actor, domain.PermManageProposals, "create proposal"); err != nil {
		return domain.Proposal{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Proposal{}, domain.Invalid("title", "is required")
	}
	if strings.TrimSpace(in.ClientName) == "" {
		return domain.Proposal{}, domain.Invalid("clientName", "is required")
	}
	items, err := domain.NewLineItems(in.Items)
	if err != nil {
		return domain.Proposal{}, err
	}

	now := s.deps.now()
	p := domain.Proposal{
		ID:          newID(),
		Title:       strings.TrimSpace(in.Title),
		ClientName:  strings.TrimSpace(in.ClientName),
		Description: in.Description,
		Status:      domain.ProposalDraft,
		Currency:    defaultCurrency(in.Currency),
		Items:       items,
		ValidUntil:  in.ValidUntil,
		ApproverIDs: in.ApproverIDs,
		Approvals:   []domain.ApprovalRecord{},
		Stamps:      domain.NewStamps(actor.ID, now),
	}
	p.Subtotal, p.TaxAmount, p.Total = domain.Totals(items)

	err = s.deps.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		number, err := NextNumber(ctx, tx, domain.NumberProposal, now)
		if err != nil {
			return err
		}
		p.Number = number
		return tx.Create(ctx, domain.CollectionProposals, p.ID, p)
	})
	if err != nil {
		return domain.Proposal{}, classify("create proposal", err)
	}

	ref := domain.EntityRef{Type: domain.EntityProposal, ID: p.ID}
	s.deps.Effects.Dispatch(ctx, ref, auditEvent(actor, "PROPOSAL_CREATED", ref,
		"Proposal "+p.Number+" drafted for "+p.ClientName,
		map[string]any{"number": p.Number, "total": p.Total.String()},
	))
	return p, nil
}

// Update edits a draft. Only the fields present in patch change.
func (s *ProposalService) Update(ctx context.Context, actor domain.Actor, id string, patch domain.ProposalPatch) (domain.Proposal, error) {
	if err := RequirePermission(actor, domain.PermManageProposals, "edit proposal"); err != nil {
		return domain.Proposal{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := editable(current); err != nil {
		return domain.Proposal{}, err
	}
	// Validate the patch before opening the transaction.
	if err := patch.Apply(&current); err != nil {
		return domain.Proposal{}, err
	}

	var updated domain.Proposal
	err = s.deps.Store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		p, err := load[domain.Proposal](ctx, tx, domain.EntityProposal, domain.CollectionProposals, id)
		if err != nil {
			return err
		}
		if err := editable(p); err != nil {
			return err
		}
		if err := patch.Apply(&p); err != nil {
			return err
		}
		p.Touch(actor.ID, s.deps.now())
		updated = p
		return tx.Set(ctx, domain.CollectionProposals, p.ID, p)
	})
	if err != nil {
		return domain.Proposal{}, classify("update proposal", err)
	}

	ref := domain.EntityRef{Type: domain.EntityProposal, ID: updated.ID}
	s.deps.Effects.Dispatch(ctx, ref, auditEvent(actor, "PROPOSAL_UPDATED", ref,
		"Proposal "+updated.Number+" updated",
		map[string]any{"number": updated.Number, "total": updated.Total.String()},
	))
	return updated, nil
}

func editable(p domain.Proposal) error {
	if p.Status == domain.ProposalDraft {
		return nil
	}
	return &domain.InvalidTransitionError{
		Entity: domain.EntityProposal,
		From:   string(p.Status),
		To:     string(p.Status),
		Reason: fmt.Sprintf("Cannot edit proposal with status: %s", p.Status),
	}
}

// Submit sends a draft for internal approval and assigns a task to every
// approver other than the submitter.
func (s *ProposalService) Submit(ctx context.Context, actor domain.Actor, id string) (domain.Proposal, error) {
	if err := RequirePermission(actor, domain.PermManageProposals, "submit proposal"); err != nil {
		return domain.Proposal{}, err
	}
	guard := func(p domain.Proposal) error {
		if len(p.ApproverIDs) == 0 {
			return domain.Invalid("approverIds", "a proposal needs at least one approver before submission")
		}
		return nil
	}
	mutate := func(_ context.Context, _ domain.Transaction, p *domain.Proposal) error {
		now := s.deps.now()
		p.SubmittedBy = actor.ID
		p.SubmittedAt = &now
		return nil
	}
	p, from, err := s.life.transition(ctx, s.deps, step[domain.Proposal, domain.ProposalStatus]{
		id: id, to: domain.ProposalPendingApproval, actor: actor, guard: guard, mutate: mutate,
	})
	if err != nil {
		return domain.Proposal{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityProposal, ID: p.ID}
	effects := []domain.Effect{transitionAudit(actor, "PROPOSAL_SUBMITTED", ref, p.Number, from, p.Status, nil)}
	for _, approver := range p.ApproverIDs {
		if approver == actor.ID {
			continue
		}
		effects = append(effects, domain.CreateTask{Spec: domain.TaskSpec{
			UserID:   approver,
			Category: domain.TaskProposalApproval,
			Entity:   ref,
			Title:    fmt.Sprintf("Approve proposal %s for %s", p.Number, p.ClientName),
			Priority: domain.PriorityHigh,
		}})
	}
	s.deps.Effects.Dispatch(ctx, ref, effects...)
	return p, nil
}

// Approve approves a proposal pending approval.
func (s *ProposalService) Approve(ctx context.Context, actor domain.Actor, id, comment string) (domain.Proposal, error) {
	return s.review(ctx, actor, id, comment, domain.ProposalApproved, domain.ApprovalApproved, "approve proposal", "PROPOSAL_APPROVED")
}

// Reject turns a proposal down during internal review.
func (s *ProposalService) Reject(ctx context.Context, actor domain.Actor, id, comment string) (domain.Proposal, error) {
	return s.review(ctx, actor, id, comment, domain.ProposalRejected, domain.ApprovalRejected, "reject proposal", "PROPOSAL_REJECTED")
}

// RequestChanges returns a proposal to its author as a draft.
func (s *ProposalService) RequestChanges(ctx context.Context, actor domain.Actor, id, comment string) (domain.Proposal, error) {
	return s.review(ctx, actor, id, comment, domain.ProposalDraft, domain.ApprovalRequestedChanges, "request changes to proposal", "PROPOSAL_CHANGES_REQUESTED")
}

func (s *ProposalService) review(
	ctx context.Context,
	actor domain.Actor,
	id, comment string,
	to domain.ProposalStatus,
	decision domain.ApprovalAction,
	action, eventType string,
) (domain.Proposal, error) {
	if err := RequirePermission(actor, domain.PermApproveProposals, action); err != nil {
		return domain.Proposal{}, err
	}
	guard := func(p domain.Proposal) error {
		if err := PreventSelfApproval(actor.ID, p.SubmittedBy, action); err != nil {
			return err
		}
		// REJECTED is also reachable from SUBMITTED, which is the client's
		// call and goes through Decline.
		if to == domain.ProposalRejected && p.Status != domain.ProposalPendingApproval {
			return &domain.InvalidTransitionError{
				Entity: domain.EntityProposal,
				From:   string(p.Status),
				To:     string(to),
				Reason: fmt.Sprintf("Cannot reject proposal with status: %s", p.Status),
			}
		}
		return nil
	}
	mutate := func(_ context.Context, _ domain.Transaction, p *domain.Proposal) error {
		p.Approvals = append(p.Approvals, domain.ApprovalRecord{
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Action:    decision,
			Comment:   comment,
			At:        s.deps.now(),
		})
		return nil
	}
	p, from, err := s.life.transition(ctx, s.deps, step[domain.Proposal, domain.ProposalStatus]{
		id: id, to: to, actor: actor, guard: guard, mutate: mutate,
	})
	if err != nil {
		return domain.Proposal{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityProposal, ID: p.ID}
	s.deps.Effects.Dispatch(ctx, ref,
		transitionAudit(actor, eventType, ref, p.Number, from, p.Status,
			map[string]any{"decision": string(decision), "comment": comment}),
		domain.CompleteTask{
			Entity:   ref,
			Category: domain.TaskProposalApproval,
			ActorID:  actor.ID,
			Success:  decision == domain.ApprovalApproved,
		},
		domain.CreateTask{Spec: domain.TaskSpec{
			UserID:   p.SubmittedBy,
			Category: domain.TaskProposalDecision,
			Entity:   ref,
			Title:    fmt.Sprintf("Proposal %s: %s by %s", p.Number, decisionLabel(decision), reviewerName(actor)),
			Priority: domain.PriorityMedium,
		}},
	)
	return p, nil
}

func decisionLabel(a domain.ApprovalAction) string {
	switch a {
	case domain.ApprovalApproved:
		return "approved"
	case domain.ApprovalRejected:
		return "rejected"
	default:
		return "changes requested"
	}
}

func reviewerName(actor domain.Actor) string {
	if actor.Name != "" {
		return actor.Name
	}
	return actor.ID
}

// MarkSubmittedToClient records that an approved proposal was sent to the client.
func (s *ProposalService) MarkSubmittedToClient(ctx context.Context, actor domain.Actor, id string) (domain.Proposal, error) {
	mutate := func(_ context.Context, _ domain.Transaction, p *domain.Proposal) error {
		now := s.deps.now()
		p.SentAt = &now
		return nil
	}
	return s.move(ctx, actor, id, domain.ProposalSubmitted, "send proposal", "PROPOSAL_SENT", nil, mutate)
}

// Accept records the client's acceptance.
func (s *ProposalService) Accept(ctx context.Context, actor domain.Actor, id string) (domain.Proposal, error) {
	return s.move(ctx, actor, id, domain.ProposalAccepted, "accept proposal", "PROPOSAL_ACCEPTED", nil, nil)
}

// Decline records that the client turned the proposal down.
func (s *ProposalService) Decline(ctx context.Context, actor domain.Actor, id string) (domain.Proposal, error) {
	guard := func(p domain.Proposal) error {
		if p.Status != domain.ProposalSubmitted {
			return &domain.InvalidTransitionError{
				Entity: domain.EntityProposal,
				From:   string(p.Status),
				To:     string(domain.ProposalRejected),
				Reason: fmt.Sprintf("Cannot decline proposal with status: %s", p.Status),
			}
		}
		return nil
	}
	return s.move(ctx, actor, id, domain.ProposalRejected, "decline proposal", "PROPOSAL_DECLINED", guard, nil)
}

// Withdraw abandons a draft.
func (s *ProposalService) Withdraw(ctx context.Context, actor domain.Actor, id string) (domain.Proposal, error) {
	return s.move(ctx, actor, id, domain.ProposalWithdrawn, "withdraw proposal", "PROPOSAL_WITHDRAWN", nil, nil)
}

func (s *ProposalService) move(
	ctx context.Context,
	actor domain.Actor,
	id string,
	to domain.ProposalStatus,
	action, eventType string,
	guard func(p domain.Proposal) error,
	mutate func(ctx context.Context, tx domain.Transaction, p *domain.Proposal) error,
) (domain.Proposal, error) {
	if err := RequirePermission(actor, domain.PermManageProposals, action); err != nil {
		return domain.Proposal{}, err
	}
	p, from, err := s.life.transition(ctx, s.deps, step[domain.Proposal, domain.ProposalStatus]{
		id: id, to: to, actor: actor, guard: guard, mutate: mutate,
	})
	if err != nil {
		return domain.Proposal{}, err
	}

	ref := domain.EntityRef{Type: domain.EntityProposal, ID: p.ID}
	s.deps.Effects.Dispatch(ctx, ref, transitionAudit(actor, eventType, ref, p.Number, from, p.Status, nil))
	return p, nil
}

// Get returns a proposal.
func (s *ProposalService) Get(ctx context.Context, id string) (domain.Proposal, error) {
	return load[domain.Proposal](ctx, s.deps.Store, domain.EntityProposal, domain.CollectionProposals, id)
}
