package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from  types.RunState
		to    types.RunState
		valid bool
	}{
		{types.StateUnknown, types.StateQueued, true},
		{types.StateUnknown, types.StateMissingRunID, true},
		{types.StateQueued, types.StateInProgress, true},
		{types.StateInProgress, types.StateQueued, true},
		{types.StateInProgress, types.StateCompleted, true},
		{types.StateInProgress, types.StateTimedOut, true},
		{types.StateInProgress, types.StateFetchFailed, true},
		{types.StateCompleted, types.StateMissingReport, true},
		{types.StateCompleted, types.StateInvalidReport, true},
		{types.StateCompleted, types.StateInProgress, false},
		{types.StateCompleted, types.StateUnknown, false},
		{types.StateTimedOut, types.StatePending, false},
		{types.StateTimedOut, types.StateCompleted, false},
		{types.StateFetchFailed, types.StateQueued, false},
		{types.StateMissingRunID, types.StateUnknown, false},
		{types.StateMissingReport, types.StateInvalidReport, false},
		{types.StateInvalidReport, types.StateCompleted, false},
		{types.StateQueued, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to))
			err := Transition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []types.RunState{
		types.StateCompleted, types.StateMissingRunID, types.StateFetchFailed,
		types.StateTimedOut, types.StateInvalidReport, types.StateMissingReport,
		"cancelled",
	} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []types.RunState{
		types.StateUnknown, types.StateQueued, types.StateInProgress,
		types.StateWaiting, types.StatePending, types.StateRequested, "",
	} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestAdvance_NeverRevertsTerminal(t *testing.T) {
	rs := &types.RunStatus{Repo: "acme/widgets"}

	require.NoError(t, Advance(rs, types.StateInProgress, "", ""))
	require.NoError(t, Advance(rs, types.StateTimedOut, types.ConclusionTimedOut, "poll budget exhausted"))

	err := Advance(rs, types.StatePending, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme/widgets")
	assert.Equal(t, types.StateTimedOut, rs.Status)
	assert.Equal(t, types.ConclusionTimedOut, rs.Conclusion)
	assert.Equal(t, "poll budget exhausted", rs.Error)
}

func TestAdvance_EmptyStatusTreatedAsUnknown(t *testing.T) {
	rs := &types.RunStatus{}
	require.NoError(t, Advance(rs, types.StateMissingRunID, types.ConclusionFailure, "no match"))
	assert.Equal(t, types.StateMissingRunID, rs.Status)
}
