package app

import (
	"context"
	"errors"

	"github.com/neomorfeo/procura/internal/domain"
)

// Compile-time check: TaskStore implements domain.TaskService.
var _ domain.TaskService = (*TaskStore)(nil)

// TaskStore keeps user tasks in the tasks collection.
type TaskStore struct {
	store domain.DocumentStore
	clock domain.Clock
}

// NewTaskStore creates a task service on store.
func NewTaskStore(store domain.DocumentStore, clock domain.Clock) *TaskStore {
	return &TaskStore{store: store, clock: clock}
}

func (s *TaskStore) CreateTask(ctx context.Context, spec domain.TaskSpec) (domain.Task, error) {
	priority := spec.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	task := domain.Task{
		ID:         newID(),
		UserID:     spec.UserID,
		Category:   spec.Category,
		EntityType: spec.Entity.Type,
		EntityID:   spec.Entity.ID,
		Title:      spec.Title,
		Priority:   priority,
		Status:     domain.TaskOpen,
		CreatedAt:  s.clock().UTC(),
	}
	err := s.store.BatchWrite(ctx, []domain.WriteOp{{
		Kind:       domain.WriteCreate,
		Collection: domain.CollectionTasks,
		ID:         task.ID,
		Data:       task,
	}})
	if err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (s *TaskStore) FindTaskByEntity(ctx context.Context, ref domain.EntityRef, category domain.TaskCategory, statuses []domain.TaskStatus) ([]domain.Task, error) {
	filters := []domain.Filter{
		domain.Where("entityType", ref.Type),
		domain.Where("entityId", ref.ID),
		domain.Where("category", category),
	}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, st := range statuses {
			values[i] = string(st)
		}
		filters = append(filters, domain.WhereIn("status", values))
	}
	return queryAll[domain.Task](ctx, s.store, domain.Query{
		Collection: domain.CollectionTasks,
		Filters:    filters,
		OrderBy:    "createdAt",
	})
}

// CompleteTask marks a task done. Completing a completed task is a no-op.
func (s *TaskStore) CompleteTask(ctx context.Context, taskID, actorID string, success bool) error {
	return s.store.RunTransaction(ctx, func(ctx context.Context, tx domain.Transaction) error {
		task, err := load[domain.Task](ctx, tx, domain.EntityTask, domain.CollectionTasks, taskID)
		if err != nil {
			return err
		}
		if task.Completed {
			return nil
		}
		now := s.clock().UTC()
		task.Status = domain.TaskCompleted
		task.Completed = true
		task.CompletedBy = actorID
		task.CompletedAt = &now
		task.Success = success
		return tx.Set(ctx, domain.CollectionTasks, task.ID, task)
	})
}

// Get returns one task.
func (s *TaskStore) Get(ctx context.Context, taskID string) (domain.Task, error) {
	return load[domain.Task](ctx, s.store, domain.EntityTask, domain.CollectionTasks, taskID)
}

// ListForUser returns a user's tasks, newest first.
func (s *TaskStore) ListForUser(ctx context.Context, userID string, openOnly bool) ([]domain.Task, error) {
	filters := []domain.Filter{domain.Where("userId", userID)}
	if openOnly {
		filters = append(filters, domain.Where("completed", false))
	}
	return queryAll[domain.Task](ctx, s.store, domain.Query{
		Collection: domain.CollectionTasks,
		Filters:    filters,
		OrderBy:    "createdAt",
		Descending: true,
	})
}

// TaskQueries exposes a user's task inbox.
type TaskQueries struct {
	tasks *TaskStore
}

// NewTaskQueries creates the inbox service.
func NewTaskQueries(tasks *TaskStore) *TaskQueries {
	return &TaskQueries{tasks: tasks}
}

// ListForUser lists the tasks assigned to userID. Only the user themselves
// or an administrator may read an inbox.
func (q *TaskQueries) ListForUser(ctx context.Context, actor domain.Actor, userID string, openOnly bool) ([]domain.Task, error) {
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID {
		if err := RequirePermission(actor, domain.PermAdmin, "read another user's tasks"); err != nil {
			return nil, err
		}
	}
	tasks, err := q.tasks.ListForUser(ctx, userID, openOnly)
	return tasks, classify("list tasks", err)
}

// Complete completes a task on behalf of its assignee or an administrator.
func (q *TaskQueries) Complete(ctx context.Context, actor domain.Actor, taskID string) (domain.Task, error) {
	task, err := q.tasks.Get(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.UserID != actor.ID {
		if err := RequirePermission(actor, domain.PermAdmin, "complete another user's task"); err != nil {
			return domain.Task{}, err
		}
	}
	if err := q.tasks.CompleteTask(ctx, taskID, actor.ID, true); err != nil {
		return domain.Task{}, classify("complete task", err)
	}
	return q.tasks.Get(ctx, taskID)
}

// ignoreMissing treats a vanished task as already handled.
func ignoreMissing(err error) error {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return nil
	}
	return err
}
