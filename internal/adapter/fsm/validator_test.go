package fsm_test

import (
	"errors"
	"testing"

	adapter "github.com/neomorfeo/procura/internal/adapter/fsm"
	"github.com/neomorfeo/procura/internal/domain"
)

// allowedSet flattens a table's edges for lookup.
func allowedSet[S ~string](table domain.TransitionTable[S]) map[[2]S]bool {
	out := make(map[[2]S]bool)
	for src, dsts := range table.Edges {
		for _, dst := range dsts {
			out[[2]S{src, dst}] = true
		}
	}
	return out
}

// checkClosure validates every ordered pair of statuses twice and compares
// the answer with the table.
func checkClosure[S ~string](t *testing.T, table domain.TransitionTable[S]) {
	t.Helper()
	v := adapter.New(table)
	allowed := allowedSet(table)

	for _, from := range table.States {
		for _, to := range table.States {
			first := v.Validate(from, to)
			second := v.Validate(from, to)
			if first != second {
				t.Errorf("%s: Validate(%q, %q) not deterministic: %+v vs %+v", table.Entity, from, to, first, second)
			}
			if first.Allowed != allowed[[2]S{from, to}] {
				t.Errorf("%s: Validate(%q, %q).Allowed = %v, want %v", table.Entity, from, to, first.Allowed, !first.Allowed)
			}
			if !first.Allowed && first.Reason == "" {
				t.Errorf("%s: Validate(%q, %q) rejected without a reason", table.Entity, from, to)
			}
		}
	}
}

func TestValidator_TransitionClosure(t *testing.T) {
	checkClosure(t, domain.RFQTransitions)
	checkClosure(t, domain.OfferTransitions)
	checkClosure(t, domain.PurchaseOrderTransitions)
	checkClosure(t, domain.GoodsReceiptTransitions)
	checkClosure(t, domain.ProposalTransitions)
	checkClosure(t, domain.MatchTransitions)
}

func TestValidator_UnknownStatus(t *testing.T) {
	v := adapter.New(domain.RFQTransitions)

	if d := v.Validate("ARCHIVED", domain.RFQCancelled); d.Allowed {
		t.Error("unknown current status must be rejected")
	}
	if d := v.Validate(domain.RFQDraft, "ARCHIVED"); d.Allowed {
		t.Error("unknown requested status must be rejected")
	}
}

func TestValidator_Reasons(t *testing.T) {
	gr := adapter.New(domain.GoodsReceiptTransitions)
	d := gr.Validate(domain.GRPending, domain.GRCompleted)
	if d.Allowed {
		t.Fatal("PENDING -> COMPLETED must be rejected")
	}
	if want := "Cannot complete GR with status: PENDING"; d.Reason != want {
		t.Errorf("Reason = %q, want %q", d.Reason, want)
	}

	proposal := adapter.New(domain.ProposalTransitions)
	err := domain.Check[domain.ProposalStatus](proposal, domain.EntityProposal, domain.ProposalDraft, domain.ProposalApproved)
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if want := "Cannot approve proposal with status: DRAFT"; ite.Reason != want {
		t.Errorf("Reason = %q, want %q", ite.Reason, want)
	}
}

func TestValidator_ProposalLifecycle(t *testing.T) {
	v := adapter.New(domain.ProposalTransitions)

	steps := []struct {
		from, to domain.ProposalStatus
	}{
		{domain.ProposalDraft, domain.ProposalPendingApproval},
		{domain.ProposalPendingApproval, domain.ProposalDraft},
		{domain.ProposalDraft, domain.ProposalPendingApproval},
		{domain.ProposalPendingApproval, domain.ProposalApproved},
		{domain.ProposalApproved, domain.ProposalSubmitted},
		{domain.ProposalSubmitted, domain.ProposalAccepted},
	}
	for _, step := range steps {
		if d := v.Validate(step.from, step.to); !d.Allowed {
			t.Errorf("Validate(%q, %q) rejected: %s", step.from, step.to, d.Reason)
		}
	}
}

func TestValidator_OfferSiblingRejection(t *testing.T) {
	v := adapter.New(domain.OfferTransitions)

	// Every live status can be rejected when a sibling is selected.
	for _, s := range []domain.OfferStatus{domain.OfferUploaded, domain.OfferUnderReview, domain.OfferEvaluated} {
		if d := v.Validate(s, domain.OfferRejected); !d.Allowed {
			t.Errorf("Validate(%q, REJECTED) rejected: %s", s, d.Reason)
		}
	}
	if d := v.Validate(domain.OfferWithdrawn, domain.OfferRejected); d.Allowed {
		t.Error("withdrawn offers are terminal")
	}
}
