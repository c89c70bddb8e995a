package app

import (
	"context"
	"time"

	"github.com/neomorfeo/procura/internal/domain"
)

// Compile-time check: AuditLog implements domain.AuditSink.
var _ domain.AuditSink = (*AuditLog)(nil)

// AuditLog appends audit events to the auditLogs collection.
type AuditLog struct {
	store domain.DocumentStore
}

// NewAuditLog creates an audit sink on store.
func NewAuditLog(store domain.DocumentStore) *AuditLog {
	return &AuditLog{store: store}
}

func (a *AuditLog) LogEvent(ctx context.Context, event domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = newID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return a.store.BatchWrite(ctx, []domain.WriteOp{{
		Kind:       domain.WriteCreate,
		Collection: domain.CollectionAuditLogs,
		ID:         event.ID,
		Data:       event,
	}})
}

// auditEvent builds an audit entry for an action of actor on ref.
func auditEvent(actor domain.Actor, eventType string, ref domain.EntityRef, description string, metadata map[string]any) domain.AuditEvent {
	return domain.AuditEvent{
		ID:          newID(),
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		EventType:   eventType,
		EntityType:  ref.Type,
		EntityID:    ref.ID,
		Description: description,
		Metadata:    metadata,
	}
}
