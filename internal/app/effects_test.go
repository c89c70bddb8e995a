package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/domain"
)

func TestEffects_AuditFailureDoesNotFailTransition(t *testing.T) {
	audit := &failingAudit{}
	h := newHarness(t, withAudit(audit))
	ctx := context.Background()

	rfq := h.issuedRFQ(t, "v-1")
	o := h.offer(t, rfq.ID, "v-1")

	selected, err := h.svc.Offers.Select(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferSelected, selected.Status)
	assert.Equal(t, domain.RFQCompleted, h.rfq(t, rfq.ID).Status)
	assert.Positive(t, audit.calls)
	assert.Zero(t, h.store.Len(domain.CollectionAuditLogs))
}

func TestEffects_TaskFailureDoesNotFailTransition(t *testing.T) {
	h := newHarness(t, withTasks(failingTasks{}))
	ctx := context.Background()

	p := h.submittedProposal(t, reviewer.ID)
	_, err := h.svc.Proposals.Approve(ctx, reviewer, p.ID, "")
	require.NoError(t, err)

	got, err := h.svc.Proposals.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalApproved, got.Status)
	require.Len(t, got.Approvals, 1)
	assert.Equal(t, reviewer.ID, got.Approvals[0].ActorID)
	assert.Zero(t, h.store.Len(domain.CollectionTasks))
}

func TestEffects_AuditTrailWritten(t *testing.T) {
	h := newHarness(t)
	rfq := h.issuedRFQ(t, "v-1")

	// RFQ_CREATED and RFQ_ISSUED.
	assert.Equal(t, 2, h.store.Len(domain.CollectionAuditLogs))

	h.offer(t, rfq.ID, "v-1")
	// OFFER_CREATED and RFQ_OFFERS_RECEIVED.
	assert.Equal(t, 4, h.store.Len(domain.CollectionAuditLogs))
}

func TestDispatcher_QueueTakesEffects(t *testing.T) {
	queue := &recordingQueue{}
	h := newHarness(t, withQueue(queue))

	h.purchaseOrder(t)
	require.Len(t, queue.effects, 1)
	assert.Equal(t, domain.EffectAudit, queue.effects[0].Kind())
	assert.Zero(t, h.store.Len(domain.CollectionAuditLogs), "queued effects are not run inline")
}

func TestDispatcher_FallsBackInlineWhenEnqueueFails(t *testing.T) {
	queue := &recordingQueue{err: errors.New("queue unavailable")}
	h := newHarness(t, withQueue(queue))

	h.purchaseOrder(t)
	assert.Empty(t, queue.effects)
	assert.Equal(t, 1, h.store.Len(domain.CollectionAuditLogs))
}

func TestDispatcher_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := app.NewEffectDispatcher(
		&recordingQueue{err: errors.New("queue unavailable")},
		app.NewEffectExecutor(&failingAudit{}, failingTasks{}),
		zap.New(core),
	)

	ref := domain.EntityRef{Type: domain.EntityRFQ, ID: "rfq-1"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, ref, domain.AuditEvent{EventType: "X"}, domain.CompleteTask{Entity: ref, Category: domain.TaskRFQReadyForEvaluation})

	failed := logs.FilterMessage("side effect failed").All()
	require.Len(t, failed, 2)
	fields := failed[0].ContextMap()
	assert.Equal(t, "rfq", fields["entity_type"])
	assert.Equal(t, "rfq-1", fields["entity_id"])
	assert.Equal(t, "audit", fields["effect"])
	assert.Equal(t, "task.complete", failed[1].ContextMap()["effect"])
	assert.Len(t, logs.FilterMessage("enqueueing effect failed, running inline").All(), 2)
}

func TestExecutor_CreateTaskSkipsDuplicates(t *testing.T) {
	h := newHarness(t)
	exec := app.NewEffectExecutor(app.NewAuditLog(h.store), h.tasks)
	ctx := context.Background()
	ref := domain.EntityRef{Type: domain.EntityRFQ, ID: "rfq-1"}
	spec := domain.TaskSpec{UserID: "u-1", Category: domain.TaskRFQReadyForEvaluation, Entity: ref, Title: "ready"}

	require.NoError(t, exec.Execute(ctx, domain.CreateTask{Spec: spec}))
	require.NoError(t, exec.Execute(ctx, domain.CreateTask{Spec: spec}))
	assert.Len(t, h.openTasks(t, "u-1"), 1)

	other := spec
	other.UserID = "u-2"
	require.NoError(t, exec.Execute(ctx, domain.CreateTask{Spec: other}))
	assert.Len(t, h.openTasks(t, "u-2"), 1)

	complete := domain.CompleteTask{Entity: ref, Category: domain.TaskRFQReadyForEvaluation, ActorID: "u-3", Success: true}
	require.NoError(t, exec.Execute(ctx, complete))
	require.NoError(t, exec.Execute(ctx, complete))
	assert.Empty(t, h.openTasks(t, "u-1"))
	assert.Empty(t, h.openTasks(t, "u-2"))

	all, err := h.tasks.ListForUser(ctx, "u-1", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "u-3", all[0].CompletedBy)
	assert.True(t, all[0].Success)
}
