package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/procura/internal/domain"
)

func TestTaskQueries_Inbox(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submittedProposal(t, reviewer.ID)

	tasks, err := h.svc.Tasks.ListForUser(ctx, reviewer, "", true)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskProposalApproval, tasks[0].Category)
	assert.Equal(t, domain.TaskOpen, tasks[0].Status)

	_, err = h.svc.Tasks.ListForUser(ctx, author, reviewer.ID, true)
	var aerr *domain.AuthorizationError
	require.ErrorAs(t, err, &aerr)

	admin := domain.Actor{ID: "u-admin", Permissions: domain.PermAdmin}
	tasks, err = h.svc.Tasks.ListForUser(ctx, admin, reviewer.ID, true)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTaskQueries_Complete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.submittedProposal(t, reviewer.ID)
	task := h.openTasks(t, reviewer.ID)[0]

	_, err := h.svc.Tasks.Complete(ctx, author, task.ID)
	var aerr *domain.AuthorizationError
	require.ErrorAs(t, err, &aerr, "only the assignee completes a task")

	done, err := h.svc.Tasks.Complete(ctx, reviewer, task.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, domain.TaskCompleted, done.Status)
	assert.Equal(t, reviewer.ID, done.CompletedBy)
	require.NotNil(t, done.CompletedAt)
	assert.Empty(t, h.openTasks(t, reviewer.ID))

	again, err := h.svc.Tasks.Complete(ctx, reviewer, task.ID)
	require.NoError(t, err)
	assert.Equal(t, done.CompletedAt, again.CompletedAt)

	_, err = h.svc.Tasks.Complete(ctx, reviewer, "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityTask, nf.Entity)
}
