// Package lifecycle enforces forward-only transitions of a run's status.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// refinable lists terminal states that a later stage may still replace, and
// with what. A completed run becomes a report failure if its artifact is
// missing or invalid; every other terminal state is final.
var refinable = map[types.RunState][]types.RunState{
	types.StateCompleted: {types.StateMissingReport, types.StateInvalidReport},
}

// CanTransition reports whether moving from one status to another keeps the
// status monotonic.
func CanTransition(from, to types.RunState) bool {
	if to == "" {
		return false
	}
	if !from.IsTerminal() {
		// unknown/pending may move anywhere, including back into pending
		// while a poll is still in flight.
		return true
	}
	for _, s := range refinable[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a status change, returning an error if it would revert
// or overwrite a terminal status.
func Transition(from, to types.RunState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// Advance applies a transition to rs in place, recording conclusion and reason.
func Advance(rs *types.RunStatus, to types.RunState, conclusion, reason string) error {
	from := rs.Status
	if from == "" {
		from = types.StateUnknown
	}
	if err := Transition(from, to); err != nil {
		return fmt.Errorf("%s: %w", rs.Repo, err)
	}
	rs.Status = to
	if conclusion != "" {
		rs.Conclusion = conclusion
	}
	if reason != "" {
		rs.Error = reason
	}
	return nil
}
