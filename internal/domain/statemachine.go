package domain

import "fmt"

// TransitionTable declares the closed status set of one entity type and the
// directed transitions allowed between its members. Every status in States has
// an entry in Edges, possibly empty for terminal statuses.
type TransitionTable[S ~string] struct {
	Entity  EntityType
	Initial S
	States  []S
	Edges   map[S][]S

	// Reasons overrides the rejection message per requested status. The
	// format receives the current status as its only argument.
	Reasons map[S]string
}

// Decision is the outcome of a transition check.
type Decision struct {
	Allowed bool
	Reason  string
}

// TransitionValidator checks a requested status change against an entity's table.
// Implementations are pure: no I/O, same answer for the same inputs.
type TransitionValidator[S ~string] interface {
	Validate(current, requested S) Decision
}

// Has reports whether s belongs to the table's status set.
func (t TransitionTable[S]) Has(s S) bool {
	for _, st := range t.States {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (t TransitionTable[S]) IsTerminal(s S) bool {
	return t.Has(s) && len(t.Edges[s]) == 0
}

// Reason returns the human-readable rejection for current -> requested.
func (t TransitionTable[S]) Reason(current, requested S) string {
	if format, ok := t.Reasons[requested]; ok {
		return fmt.Sprintf(format, current)
	}
	return fmt.Sprintf("Cannot transition from %s to %s", current, requested)
}

// Check converts a Decision into an InvalidTransitionError when disallowed.
func Check[S ~string](v TransitionValidator[S], entity EntityType, current, requested S) error {
	d := v.Validate(current, requested)
	if d.Allowed {
		return nil
	}
	return &InvalidTransitionError{
		Entity: entity,
		From:   string(current),
		To:     string(requested),
		Reason: d.Reason,
	}
}
