package domain

import "time"

// EntityType names a kind of business entity.
type EntityType string

const (
	EntityRFQ           EntityType = "rfq"
	EntityOffer         EntityType = "offer"
	EntityPurchaseOrder EntityType = "purchase_order"
	EntityGoodsReceipt  EntityType = "goods_receipt"
	EntityProposal      EntityType = "proposal"
	EntityMatch         EntityType = "three_way_match"
	EntityTask          EntityType = "task"
)

// EntityRef points at one entity.
type EntityRef struct {
	Type EntityType `json:"entityType"`
	ID   string     `json:"entityId"`
}

// EffectKind tags the Effect variants.
type EffectKind string

const (
	EffectAudit        EffectKind = "audit"
	EffectCreateTask   EffectKind = "task.create"
	EffectCompleteTask EffectKind = "task.complete"
)

// Effect is a best-effort side effect of a persisted transition. The variants
// are AuditEvent, CreateTask and CompleteTask.
type Effect interface {
	Kind() EffectKind
}

// AuditEvent is an append-only audit log entry.
type AuditEvent struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actorId"`
	ActorName   string         `json:"actorName"`
	EventType   string         `json:"eventType"`
	EntityType  EntityType     `json:"entityType"`
	EntityID    string         `json:"entityId"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

func (AuditEvent) Kind() EffectKind { return EffectAudit }

// CreateTask asks for a task to be created unless an open one already exists
// for the same user, category and entity.
type CreateTask struct {
	Spec TaskSpec `json:"spec"`
}

func (CreateTask) Kind() EffectKind { return EffectCreateTask }

// CompleteTask completes the open tasks of a category on an entity.
type CompleteTask struct {
	Entity   EntityRef    `json:"entity"`
	Category TaskCategory `json:"category"`
	ActorID  string       `json:"actorId"`
	Success  bool         `json:"success"`
}

func (CompleteTask) Kind() EffectKind { return EffectCompleteTask }
