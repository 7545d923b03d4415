// Package correlation finds the run a dispatcher started when the dispatch call
// did not return its id, by matching the correlation token the run carries.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dwsmith1983/fleetgate/internal/github"
	"github.com/dwsmith1983/fleetgate/internal/metrics"
)

// Resolver defaults.
const (
	DefaultLookback  = 30
	defaultCacheSize = 512
	dispatchEvent    = "workflow_dispatch"
)

// RunLister lists recent runs of a workflow, newest first.
type RunLister interface {
	ListWorkflowRuns(ctx context.Context, repo, workflow string, opts github.ListRunsOptions) ([]github.Run, error)
}

// TokenFunc returns the correlation token a run recorded, or "" if it recorded
// none. An error skips the candidate.
type TokenFunc func(ctx context.Context, repo string, runID int64) (string, error)

// Resolver matches correlation ids to run ids.
type Resolver struct {
	lister   RunLister
	token    TokenFunc
	lookback int
	cache    *lru.Cache[string, string]
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookback sets how many recent runs are considered (default 30).
func WithLookback(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.lookback = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver. token may be nil, in which case only the run title
// fast path can match.
func New(lister RunLister, token TokenFunc, opts ...Option) *Resolver {
	// Only fails for a non-positive size.
	cache, _ := lru.New[string, string](defaultCacheSize)
	r := &Resolver{
		lister:   lister,
		token:    token,
		lookback: DefaultLookback,
		cache:    cache,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the id of the newest workflow_dispatch run of workflow whose
// correlation token equals correlationID. found is false, with a nil error, when
// no candidate matches; a run that has not started yet is not a failure.
func (r *Resolver) Resolve(ctx context.Context, repo, workflow, correlationID string) (int64, bool, error) {
	if correlationID == "" {
		return 0, false, nil
	}

	runs, err := r.lister.ListWorkflowRuns(ctx, repo, workflow, github.ListRunsOptions{
		Event:   dispatchEvent,
		PerPage: r.lookback,
	})
	if err != nil {
		return 0, false, fmt.Errorf("listing %s runs for %s: %w", workflow, repo, err)
	}

	for _, run := range runs {
		if titleCarries(run, correlationID) {
			r.logger.Info("run resolved", "repo", repo, "runID", run.ID, "correlationID", correlationID, "match", "title")
			return run.ID, true, nil
		}
	}

	if r.token == nil {
		return 0, false, nil
	}
	for _, run := range runs {
		tok, err := r.lookup(ctx, repo, run.ID)
		if err != nil {
			r.logger.Debug("correlation token lookup failed", "repo", repo, "runID", run.ID, "error", err)
			continue
		}
		if tok == correlationID {
			r.logger.Info("run resolved", "repo", repo, "runID", run.ID, "correlationID", correlationID, "match", "token")
			return run.ID, true, nil
		}
	}

	r.logger.Info("run not resolved", "repo", repo, "workflow", workflow, "correlationID", correlationID, "candidates", len(runs))
	return 0, false, nil
}

// lookup returns a run's token, memoised per run. Failed lookups are not
// cached so a run whose artifact is still uploading can match later.
func (r *Resolver) lookup(ctx context.Context, repo string, runID int64) (string, error) {
	key := repo + "#" + strconv.FormatInt(runID, 10)
	if tok, ok := r.cache.Get(key); ok {
		return tok, nil
	}
	metrics.CorrelationLookups.Add(ctx, 1)
	tok, err := r.token(ctx, repo, runID)
	if err != nil {
		return "", err
	}
	r.cache.Add(key, tok)
	return tok, nil
}

// titleCarries reports whether the run's title or name holds correlationID as
// a whole word. Ids sharing a prefix such as hub-1-1 and hub-1-12 never match.
func titleCarries(run github.Run, correlationID string) bool {
	return hasWord(run.DisplayTitle, correlationID) || hasWord(run.Name, correlationID)
}

func hasWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, isTitleSeparator) {
		if f == word {
			return true
		}
	}
	return false
}

func isTitleSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(`()[]{}<>,;:|"'=#`, r)
}
