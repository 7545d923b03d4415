package correlation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetgate/internal/github"
)

type mockLister struct {
	runs []github.Run
	err  error
	opts github.ListRunsOptions
}

func (m *mockLister) ListWorkflowRuns(_ context.Context, _, _ string, opts github.ListRunsOptions) ([]github.Run, error) {
	m.opts = opts
	return m.runs, m.err
}

type tokenTable struct {
	mu     sync.Mutex
	tokens map[int64]string
	errs   map[int64]error
	calls  map[int64]int
}

func (tt *tokenTable) fn(_ context.Context, _ string, runID int64) (string, error) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.calls == nil {
		tt.calls = map[int64]int{}
	}
	tt.calls[runID]++
	if err := tt.errs[runID]; err != nil {
		return "", err
	}
	return tt.tokens[runID], nil
}

func TestResolve_TokenMatch(t *testing.T) {
	lister := &mockLister{runs: []github.Run{{ID: 30}, {ID: 20}, {ID: 10}}}
	tokens := &tokenTable{tokens: map[int64]string{30: "other", 20: "corr-123", 10: "corr-123"}}

	r := New(lister, tokens.fn)
	id, found, err := r.Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(20), id, "newest matching run wins")
	assert.Equal(t, "workflow_dispatch", lister.opts.Event)
	assert.Equal(t, DefaultLookback, lister.opts.PerPage)
	assert.Zero(t, tokens.calls[10], "listing stops at the first match")
}

func TestResolve_TitleFastPath(t *testing.T) {
	lister := &mockLister{runs: []github.Run{
		{ID: 5, DisplayTitle: "hub dispatch"},
		{ID: 4, DisplayTitle: "hub dispatch corr-9"},
	}}
	tokens := &tokenTable{}

	id, found, err := New(lister, tokens.fn).Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-9")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(4), id)
	assert.Empty(t, tokens.calls, "no token fetch when the title matches")
}

func TestResolve_TitleRequiresWholeToken(t *testing.T) {
	lister := &mockLister{runs: []github.Run{
		{ID: 900, DisplayTitle: "hub dispatch hub-1234-12"},
		{ID: 100, DisplayTitle: "hub dispatch"},
	}}
	tokens := &tokenTable{tokens: map[int64]string{900: "hub-1234-12", 100: "hub-1234-1"}}

	id, found, err := New(lister, tokens.fn).Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "hub-1234-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(100), id)
}

func TestTitleCarries(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"hub dispatch corr-9", true},
		{"hub dispatch (corr-9)", true},
		{"corr-9: nightly", true},
		{"hub dispatch corr-90", false},
		{"hub dispatch xcorr-9", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, titleCarries(github.Run{DisplayTitle: tt.title}, "corr-9"))
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	lister := &mockLister{runs: []github.Run{{ID: 2}, {ID: 1}}}
	tokens := &tokenTable{
		tokens: map[int64]string{2: "nope"},
		errs:   map[int64]error{1: errors.New("no artifact yet")},
	}

	id, found, err := New(lister, tokens.fn).Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, id)
}

func TestResolve_EmptyListing(t *testing.T) {
	_, found, err := New(&mockLister{}, nil).Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolve_ListingError(t *testing.T) {
	lister := &mockLister{err: errors.New("502 bad gateway")}

	_, found, err := New(lister, nil).Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-1")
	require.Error(t, err)
	assert.False(t, found)
	assert.Contains(t, err.Error(), "acme/widgets")
	assert.Contains(t, err.Error(), "502 bad gateway")
}

func TestResolve_EmptyCorrelationID(t *testing.T) {
	lister := &mockLister{err: errors.New("must not be called")}
	_, found, err := New(lister, nil).Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolve_TokensMemoised(t *testing.T) {
	lister := &mockLister{runs: []github.Run{{ID: 7}}}
	tokens := &tokenTable{tokens: map[int64]string{7: "corr-a"}}
	r := New(lister, tokens.fn, WithLookback(5))

	_, found, err := r.Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-b")
	require.NoError(t, err)
	assert.False(t, found)

	id, found, err := r.Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 1, tokens.calls[7])
	assert.Equal(t, 5, lister.opts.PerPage)
}

func TestResolve_FailedLookupNotMemoised(t *testing.T) {
	lister := &mockLister{runs: []github.Run{{ID: 7}}}
	tokens := &tokenTable{errs: map[int64]error{7: errors.New("uploading")}}
	r := New(lister, tokens.fn)

	_, found, _ := r.Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-a")
	assert.False(t, found)

	tokens.mu.Lock()
	delete(tokens.errs, 7)
	tokens.tokens = map[int64]string{7: "corr-a"}
	tokens.mu.Unlock()

	id, found, err := r.Resolve(context.Background(), "acme/widgets", "hub-ci.yml", "corr-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 2, tokens.calls[7])
}
