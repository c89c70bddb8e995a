package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by DocumentStore implementations.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
)

// NotFoundError is returned when an entity or its parent does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// AuthorizationError is returned when the actor lacks a capability or tries to
// approve their own submission.
type AuthorizationError struct {
	ActorID string
	Action  string
	Missing Permission
	Reason  string
}

func (e *AuthorizationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("user %s is missing permission %s required to %s", e.ActorID, e.Missing, e.Action)
}

// InvalidTransitionError is returned when the state machine rejects a status change.
type InvalidTransitionError struct {
	Entity EntityType
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return e.Reason
}

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DuplicateOperationError is returned when an idempotency key collides with a
// prior call that is still running.
type DuplicateOperationError struct {
	Key       string
	Operation string
	InFlight  bool
}

func (e *DuplicateOperationError) Error() string {
	if e.InFlight {
		return fmt.Sprintf("operation %s with key %q is already in progress", e.Operation, e.Key)
	}
	return fmt.Sprintf("operation %s with key %q was already performed", e.Operation, e.Key)
}

// ExternalServiceError wraps a failure of the document store or another
// backing service.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Invalid is shorthand for a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
