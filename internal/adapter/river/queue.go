package river

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/neomorfeo/procura/internal/domain"
)

// Compile-time check: Queue implements domain.EffectQueue.
var _ domain.EffectQueue = (*Queue)(nil)

// EffectJobArgs carries one side effect through the River job queue. The
// effect itself is stored as JSON in Payload and decoded by its kind, so the
// worker never needs to query the entity it belongs to.
type EffectJobArgs struct {
	Effect     domain.EffectKind `json:"effect"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Payload    json.RawMessage   `json:"payload"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EffectJobArgs) Kind() string { return "effect.dispatch" }

// Decode rebuilds the effect carried by the job.
func (a EffectJobArgs) Decode() (domain.Effect, error) {
	var (
		effect domain.Effect
		err    error
	)
	switch a.Effect {
	case domain.EffectAudit:
		var e domain.AuditEvent
		err = json.Unmarshal(a.Payload, &e)
		effect = e
	case domain.EffectCreateTask:
		var e domain.CreateTask
		err = json.Unmarshal(a.Payload, &e)
		effect = e
	case domain.EffectCompleteTask:
		var e domain.CompleteTask
		err = json.Unmarshal(a.Payload, &e)
		effect = e
	default:
		return nil, fmt.Errorf("unknown effect kind %q", a.Effect)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", a.Effect, err)
	}
	return effect, nil
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

var unfinishedStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRetryable,
	rivertype.JobStateRunning,
	rivertype.JobStateScheduled,
}

// Queue implements domain.EffectQueue by enqueuing River jobs. River retries
// failed jobs with exponential backoff up to maxAttempts.
type Queue struct {
	client      *Client
	maxAttempts int
}

// NewQueue creates a queue backed by the given River client.
func NewQueue(client *Client, maxAttempts int) *Queue {
	return &Queue{client: client, maxAttempts: maxAttempts}
}

// Enqueue stores effect as a job. Task creation jobs are unique by their
// arguments while unfinished, so a repeated dispatch collapses into the job
// still waiting to run. Once that job completes, the same task may be
// requested again, e.g. a resubmitted proposal.
func (q *Queue) Enqueue(ctx context.Context, ref domain.EntityRef, effect domain.Effect) error {
	payload, err := json.Marshal(effect)
	if err != nil {
		return fmt.Errorf("encoding %s effect: %w", effect.Kind(), err)
	}

	opts := &river.InsertOpts{MaxAttempts: q.maxAttempts}
	if effect.Kind() == domain.EffectCreateTask {
		opts.UniqueOpts = river.UniqueOpts{ByArgs: true, ByState: unfinishedStates}
	}

	_, err = q.client.Insert(ctx, EffectJobArgs{
		Effect:     effect.Kind(),
		EntityType: ref.Type,
		EntityID:   ref.ID,
		Payload:    payload,
	}, opts)
	if err != nil {
		return fmt.Errorf("enqueuing effect job: %w", err)
	}
	return nil
}
