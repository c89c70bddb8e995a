package river

import (
	"context"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/domain"
)

// Executor performs a decoded effect.
type Executor interface {
	Execute(ctx context.Context, effect domain.Effect) error
}

// EffectWorker runs effect jobs from the River queue. A returned error makes
// River retry the job with backoff; a payload that cannot be decoded is
// cancelled since retrying cannot fix it.
type EffectWorker struct {
	river.WorkerDefaults[EffectJobArgs]
	executor Executor
	logger   *zap.Logger
}

// NewEffectWorker creates a worker that hands effects to executor.
func NewEffectWorker(executor Executor, logger *zap.Logger) *EffectWorker {
	return &EffectWorker{executor: executor, logger: logger}
}

// Work processes a single effect job.
func (w *EffectWorker) Work(ctx context.Context, job *river.Job[EffectJobArgs]) error {
	fields := []zap.Field{
		zap.String("effect", string(job.Args.Effect)),
		zap.String("entity_type", string(job.Args.EntityType)),
		zap.String("entity_id", job.Args.EntityID),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	}

	effect, err := job.Args.Decode()
	if err != nil {
		w.logger.Error("dropping undecodable effect job", append(fields, zap.Error(err))...)
		return river.JobCancel(err)
	}

	if err := w.executor.Execute(ctx, effect); err != nil {
		w.logger.Warn("effect job failed", append(fields, zap.Error(err))...)
		return err
	}
	w.logger.Debug("effect job done", fields...)
	return nil
}
