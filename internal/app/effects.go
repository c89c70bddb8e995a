package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/domain"
)

// EffectExecutor performs side effects against the audit and task services.
// Every effect is safe to run again: task creation is skipped when an open
// task already exists and task completion ignores completed tasks.
type EffectExecutor struct {
	audit domain.AuditSink
	tasks domain.TaskService
}

// NewEffectExecutor creates an executor.
func NewEffectExecutor(audit domain.AuditSink, tasks domain.TaskService) *EffectExecutor {
	return &EffectExecutor{audit: audit, tasks: tasks}
}

// Execute performs one effect.
func (e *EffectExecutor) Execute(ctx context.Context, effect domain.Effect) error {
	switch eff := effect.(type) {
	case domain.AuditEvent:
		return e.audit.LogEvent(ctx, eff)
	case domain.CreateTask:
		return e.createTask(ctx, eff.Spec)
	case domain.CompleteTask:
		return e.completeTasks(ctx, eff)
	default:
		return fmt.Errorf("unknown effect %T", effect)
	}
}

func (e *EffectExecutor) createTask(ctx context.Context, spec domain.TaskSpec) error {
	open, err := e.tasks.FindTaskByEntity(ctx, spec.Entity, spec.Category, domain.OpenTaskStatuses)
	if err != nil {
		return fmt.Errorf("looking up open tasks: %w", err)
	}
	for _, t := range open {
		if t.UserID == spec.UserID {
			return nil
		}
	}
	_, err = e.tasks.CreateTask(ctx, spec)
	return err
}

func (e *EffectExecutor) completeTasks(ctx context.Context, eff domain.CompleteTask) error {
	open, err := e.tasks.FindTaskByEntity(ctx, eff.Entity, eff.Category, domain.OpenTaskStatuses)
	if err != nil {
		return fmt.Errorf("looking up open tasks: %w", err)
	}
	for _, t := range open {
		if err := ignoreMissing(e.tasks.CompleteTask(ctx, t.ID, eff.ActorID, eff.Success)); err != nil {
			return fmt.Errorf("completing task %s: %w", t.ID, err)
		}
	}
	return nil
}

// EffectDispatcher hands side effects of a persisted transition to the effect
// queue, or runs them inline when no queue is configured or enqueueing fails.
// It never reports failure to the caller; failures are logged with the entity
// and effect kind so they can be replayed.
type EffectDispatcher struct {
	queue    domain.EffectQueue
	executor *EffectExecutor
	logger   *zap.Logger
}

// NewEffectDispatcher creates a dispatcher. queue may be nil for inline mode.
func NewEffectDispatcher(queue domain.EffectQueue, executor *EffectExecutor, logger *zap.Logger) *EffectDispatcher {
	return &EffectDispatcher{queue: queue, executor: executor, logger: logger}
}

// Dispatch attempts every effect independently. It must only be called after
// the primary write has committed. Effects outlive the request's cancellation.
func (d *EffectDispatcher) Dispatch(ctx context.Context, ref domain.EntityRef, effects ...domain.Effect) {
	ctx = context.WithoutCancel(ctx)
	for _, effect := range effects {
		fields := []zap.Field{
			zap.String("entity_type", string(ref.Type)),
			zap.String("entity_id", ref.ID),
			zap.String("effect", string(effect.Kind())),
		}

		if d.queue != nil {
			err := d.queue.Enqueue(ctx, ref, effect)
			if err == nil {
				continue
			}
			d.logger.Warn("enqueueing effect failed, running inline", append(fields, zap.Error(err))...)
		}

		if err := d.executor.Execute(ctx, effect); err != nil {
			d.logger.Error("side effect failed", append(fields, zap.Error(err))...)
		}
	}
}
