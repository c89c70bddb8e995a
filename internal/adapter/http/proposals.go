package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/domain"
)

type CreateProposalInput struct {
	ActorHeaders
	Body struct {
		Title       string         `json:"title" doc:"Proposal title"`
		ClientName  string         `json:"clientName" doc:"Client the proposal is for"`
		Description string         `json:"description,omitempty" doc:"Scope of work"`
		Currency    string         `json:"currency,omitempty" doc:"ISO currency code, EUR when empty"`
		ValidUntil  *time.Time     `json:"validUntil,omitempty" doc:"Offer validity"`
		ApproverIDs []string       `json:"approverIds,omitempty" doc:"Internal approvers"`
		Items       []LineItemBody `json:"items" doc:"Proposed lines"`
	}
}

// UpdateProposalInput patches a draft. Absent fields keep their value.
type UpdateProposalInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Proposal ID"`
	Body struct {
		Title       *string        `json:"title,omitempty"`
		ClientName  *string        `json:"clientName,omitempty"`
		Description *string        `json:"description,omitempty"`
		Currency    *string        `json:"currency,omitempty"`
		ValidUntil  *time.Time     `json:"validUntil,omitempty"`
		ApproverIDs []string       `json:"approverIds,omitempty"`
		Items       []LineItemBody `json:"items,omitempty"`
	}
}

func (in *UpdateProposalInput) patch() domain.ProposalPatch {
	var p domain.ProposalPatch
	b := in.Body
	if b.Title != nil {
		p.Title = domain.Some(*b.Title)
	}
	if b.ClientName != nil {
		p.ClientName = domain.Some(*b.ClientName)
	}
	if b.Description != nil {
		p.Description = domain.Some(*b.Description)
	}
	if b.Currency != nil {
		p.Currency = domain.Some(*b.Currency)
	}
	if b.ValidUntil != nil {
		p.ValidUntil = domain.Some(b.ValidUntil)
	}
	if b.ApproverIDs != nil {
		p.ApproverIDs = domain.Some(b.ApproverIDs)
	}
	if b.Items != nil {
		p.Items = domain.Some(lineItems(b.Items))
	}
	return p
}

type ReviewProposalInput struct {
	ActorHeaders
	ID   string `path:"id" doc:"Proposal ID"`
	Body struct {
		Comment string `json:"comment,omitempty" doc:"Reviewer comment"`
	} `required:"false"`
}

func (h *Handler) registerProposals(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-proposal",
		Method:        http.MethodPost,
		Path:          basePath + "/proposals",
		Summary:       "Create a draft proposal",
		Tags:          []string{"Proposals"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *CreateProposalInput) (*Output[domain.Proposal], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		p, err := h.svc.Proposals.Create(ctx, actor, app.CreateProposalInput{
			Title:       in.Body.Title,
			ClientName:  in.Body.ClientName,
			Description: in.Body.Description,
			Currency:    in.Body.Currency,
			ValidUntil:  in.Body.ValidUntil,
			ApproverIDs: in.Body.ApproverIDs,
			Items:       lineItems(in.Body.Items),
		})
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.Proposal]{Body: p}, nil
	})

	get(h, api, huma.Operation{
		OperationID: "get-proposal",
		Path:        basePath + "/proposals/{id}",
		Summary:     "Get a proposal by ID",
		Tags:        []string{"Proposals"},
	}, h.svc.Proposals.Get)

	huma.Register(api, huma.Operation{
		OperationID: "update-proposal",
		Method:      http.MethodPatch,
		Path:        basePath + "/proposals/{id}",
		Summary:     "Edit a draft proposal",
		Tags:        []string{"Proposals"},
	}, func(ctx context.Context, in *UpdateProposalInput) (*Output[domain.Proposal], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		p, err := h.svc.Proposals.Update(ctx, actor, in.ID, in.patch())
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[domain.Proposal]{Body: p}, nil
	})

	transition(h, api, huma.Operation{
		OperationID: "submit-proposal",
		Path:        basePath + "/proposals/{id}/submit",
		Summary:     "Submit a draft for internal approval",
		Tags:        []string{"Proposals"},
	}, h.svc.Proposals.Submit)

	review := func(id, path, summary string, fn func(context.Context, domain.Actor, string, string) (domain.Proposal, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodPost,
			Path:        basePath + path,
			Summary:     summary,
			Tags:        []string{"Proposals"},
		}, func(ctx context.Context, in *ReviewProposalInput) (*Output[domain.Proposal], error) {
			actor, err := in.actor()
			if err != nil {
				return nil, err
			}
			p, err := fn(ctx, actor, in.ID, in.Body.Comment)
			if err != nil {
				return nil, h.toHumaError(err)
			}
			return &Output[domain.Proposal]{Body: p}, nil
		})
	}
	review("approve-proposal", "/proposals/{id}/approve", "Approve a pending proposal", h.svc.Proposals.Approve)
	review("reject-proposal", "/proposals/{id}/reject", "Reject a pending proposal", h.svc.Proposals.Reject)
	review("request-proposal-changes", "/proposals/{id}/request-changes", "Send a pending proposal back to draft", h.svc.Proposals.RequestChanges)

	transition(h, api, huma.Operation{
		OperationID: "send-proposal",
		Path:        basePath + "/proposals/{id}/send",
		Summary:     "Record that an approved proposal was sent to the client",
		Tags:        []string{"Proposals"},
	}, h.svc.Proposals.MarkSubmittedToClient)

	transition(h, api, huma.Operation{
		OperationID: "accept-proposal",
		Path:        basePath + "/proposals/{id}/accept",
		Summary:     "Record the client's acceptance",
		Tags:        []string{"Proposals"},
	}, h.svc.Proposals.Accept)

	transition(h, api, huma.Operation{
		OperationID: "decline-proposal",
		Path:        basePath + "/proposals/{id}/decline",
		Summary:     "Record that the client turned the proposal down",
		Tags:        []string{"Proposals"},
	}, h.svc.Proposals.Decline)

	transition(h, api, huma.Operation{
		OperationID: "withdraw-proposal",
		Path:        basePath + "/proposals/{id}/withdraw",
		Summary:     "Withdraw a draft proposal",
		Tags:        []string{"Proposals"},
	}, h.svc.Proposals.Withdraw)
}
