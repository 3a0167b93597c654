package tasks

import "fmt"

// State is where a task is in the per-run sync state machine.
//
//	NEW      -> CREATE_PENDING -> CREATED | CREATE_FAILED
//	EXISTING -> SKIPPED
//	EXISTING -> UPDATE_PENDING -> UPDATED | UPDATE_FAILED
type State string

const (
	StateNew           State = "new"
	StateCreatePending State = "create_pending"
	StateCreated       State = "created"
	StateCreateFailed  State = "create_failed"
	StateExisting      State = "existing"
	StateSkipped       State = "skipped"
	StateUpdatePending State = "update_pending"
	StateUpdated       State = "updated"
	StateUpdateFailed  State = "update_failed"
)

var transitions = map[State][]State{
	StateNew:           {StateCreatePending},
	StateCreatePending: {StateCreated, StateCreateFailed},
	StateExisting:      {StateSkipped, StateUpdatePending},
	StateUpdatePending: {StateUpdated, StateUpdateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Failed reports whether s is a failed terminal state.
func (s State) Failed() bool {
	return s == StateCreateFailed || s == StateUpdateFailed
}

// Pending reports whether a write was planned but not performed.
func (s State) Pending() bool {
	return s == StateCreatePending || s == StateUpdatePending
}

// Next returns to, or an error when the transition is not allowed.
func (s State) Next(to State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("invalid sync state transition %s -> %s", s, to)
}
