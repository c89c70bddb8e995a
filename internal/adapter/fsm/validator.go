package fsm

import (
	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/procura/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator[domain.RFQStatus] = (*Validator[domain.RFQStatus])(nil)

// Validator implements domain.TransitionValidator using looplab/fsm.
// Each requested status becomes one event ("to_<STATUS>") whose sources are
// every status with an edge into it, so a check is a single Can call on a
// short-lived machine seeded with the current status.
type Validator[S ~string] struct {
	table  domain.TransitionTable[S]
	events []loopfsm.EventDesc
}

// New builds a validator for one entity's transition table.
func New[S ~string](table domain.TransitionTable[S]) *Validator[S] {
	return &Validator[S]{table: table, events: buildEvents(table)}
}

func eventName[S ~string](dst S) string {
	return "to_" + string(dst)
}

// buildEvents groups the table's edges by destination, in States order so
// the event list is stable.
func buildEvents[S ~string](table domain.TransitionTable[S]) []loopfsm.EventDesc {
	grouped := make(map[S][]string)
	for _, src := range table.States {
		for _, dst := range table.Edges[src] {
			grouped[dst] = append(grouped[dst], string(src))
		}
	}

	out := make([]loopfsm.EventDesc, 0, len(grouped))
	for _, dst := range table.States {
		srcs, ok := grouped[dst]
		if !ok {
			continue
		}
		out = append(out, loopfsm.EventDesc{
			Name: eventName(dst),
			Src:  srcs,
			Dst:  string(dst),
		})
	}
	return out
}

// Validate reports whether current may move to requested. Statuses outside
// the table are always rejected.
func (v *Validator[S]) Validate(current, requested S) domain.Decision {
	if !v.table.Has(current) || !v.table.Has(requested) {
		return domain.Decision{Reason: v.table.Reason(current, requested)}
	}

	machine := loopfsm.NewFSM(string(current), v.events, nil)
	if !machine.Can(eventName(requested)) {
		return domain.Decision{Reason: v.table.Reason(current, requested)}
	}
	return domain.Decision{Allowed: true}
}

// Table returns the table the validator was built from.
func (v *Validator[S]) Table() domain.TransitionTable[S] {
	return v.table
}
