// Package engine drives one aggregation pass: every dispatched repo is resolved,
// polled and fetched independently, then the outcomes are aggregated and gated.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/fleetgate/internal/aggregate"
	"github.com/dwsmith1983/fleetgate/internal/artifact"
	"github.com/dwsmith1983/fleetgate/internal/extract"
	"github.com/dwsmith1983/fleetgate/internal/gate"
	"github.com/dwsmith1983/fleetgate/internal/lifecycle"
	"github.com/dwsmith1983/fleetgate/internal/metrics"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// DefaultConcurrency is the number of repo pipelines processed at once.
const DefaultConcurrency = 4

// Resolver finds a run id from a correlation id.
type Resolver interface {
	Resolve(ctx context.Context, repo, workflow, correlationID string) (int64, bool, error)
}

// Poller waits for a run to become terminal.
type Poller interface {
	Poll(ctx context.Context, repo string, runID int64) (types.RunState, string)
}

// Fetcher downloads and validates a run's report.
type Fetcher interface {
	Fetch(ctx context.Context, repo string, runID int64, expectedCorrelationID, workflow string) (map[string]interface{}, error)
}

// Params are the scalar inputs of one aggregation pass.
type Params struct {
	HubRunID    string
	TriggeredBy string
	TotalRepos  int
	Thresholds  types.ThresholdConfig
}

// Result is the snapshot handed to the renderers.
type Result struct {
	Report *types.AggregateReport
	Runs   []types.RunResult
}

// Engine processes dispatch entries into an aggregate report.
type Engine struct {
	resolver    Resolver
	poller      Poller
	fetcher     Fetcher
	concurrency int
	alertFn     func(context.Context, types.Alert)
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds the number of concurrent repo pipelines. 1 processes
// repos strictly in dispatch order.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithAlertFunc sets the callback that receives alerts raised by a pass.
func WithAlertFunc(fn func(context.Context, types.Alert)) Option {
	return func(e *Engine) { e.alertFn = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now for the report timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. The collaborators may be nil for offline-only use.
func New(resolver Resolver, poller Poller, fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		resolver:    resolver,
		poller:      poller,
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/dwsmith1983/fleetgate/internal/engine"),
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run processes every entry and returns the aggregated, gated snapshot. A
// repo's failure is recorded on its own RunStatus and never affects the others.
func (e *Engine) Run(ctx context.Context, entries []types.DispatchEntry, p Params) (*Result, error) {
	if e.poller == nil || e.fetcher == nil {
		return nil, errors.New("engine: online mode requires a poller and a fetcher")
	}

	ctx, span := e.tracer.Start(ctx, "fleetgate.aggregate", trace.WithAttributes(
		attribute.String("hub_run_id", p.HubRunID),
		attribute.Int("dispatched", len(entries)),
	))
	defer span.End()

	e.logger.Info("aggregation started", "hubRunID", p.HubRunID, "entries", len(entries), "concurrency", e.concurrency)

	results := make([]types.RunResult, len(entries))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = e.process(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()

	return e.finish(ctx, results, p), nil
}

// process runs one repo through resolve, poll, fetch and extract.
func (e *Engine) process(ctx context.Context, entry types.DispatchEntry) types.RunResult {
	ctx, span := e.tracer.Start(ctx, "fleetgate.repo", trace.WithAttributes(
		attribute.String("repo", entry.Repo),
		attribute.Int64("run_id", entry.RunID),
	))
	defer span.End()

	res := types.RunResult{RunStatus: types.RunStatus{
		Repo:          entry.Repo,
		RunID:         entry.RunID,
		CorrelationID: entry.CorrelationID,
		Workflow:      entry.Workflow,
		Status:        types.StateUnknown,
		Conclusion:    types.ConclusionUnknown,
	}}
	rs := &res.RunStatus
	defer func() {
		span.SetAttributes(attribute.String("status", string(rs.Status)), attribute.String("conclusion", rs.Conclusion))
		if !rs.Passed() {
			span.SetStatus(codes.Error, string(rs.Status))
		}
		metrics.RecordRun(ctx, string(rs.Status))
	}()

	if rs.RunID == 0 {
		id, reason := e.resolve(ctx, entry)
		if id == 0 {
			e.advance(rs, types.StateMissingRunID, types.ConclusionFailure, reason)
			return res
		}
		rs.RunID = id
	}

	status, conclusion := e.poller.Poll(ctx, rs.Repo, rs.RunID)
	e.advance(rs, status, conclusion, pollReason(status))
	if status != types.StateCompleted {
		return res
	}

	report, err := e.fetcher.Fetch(ctx, rs.Repo, rs.RunID, rs.CorrelationID, rs.Workflow)
	if err != nil {
		to := types.StateMissingReport
		if errors.Is(err, artifact.ErrInvalidReport) {
			to = types.StateInvalidReport
		}
		e.advance(rs, to, types.ConclusionFailure, err.Error())
		return res
	}

	extract.Apply(report, rs)
	res.Report = report
	return res
}

// resolve returns the run id for an entry without one, or 0 and the reason.
func (e *Engine) resolve(ctx context.Context, entry types.DispatchEntry) (int64, string) {
	if entry.CorrelationID == "" {
		return 0, "dispatch record has neither run id nor correlation id"
	}
	if e.resolver == nil {
		return 0, "no correlation resolver configured"
	}
	id, found, err := e.resolver.Resolve(ctx, entry.Repo, entry.Workflow, entry.CorrelationID)
	if err != nil {
		return 0, err.Error()
	}
	if !found {
		return 0, fmt.Sprintf("no %s run matched correlation id %s", entry.Workflow, entry.CorrelationID)
	}
	return id, ""
}

func (e *Engine) advance(rs *types.RunStatus, to types.RunState, conclusion, reason string) {
	from := rs.Status
	if err := lifecycle.Advance(rs, to, conclusion, reason); err != nil {
		e.logger.Error("run status transition rejected", "repo", rs.Repo, "error", err)
		return
	}
	attrs := []any{"repo", rs.Repo, "runID", rs.RunID, "from", from, "to", to, "conclusion", rs.Conclusion}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	if to.IsTerminal() && to != types.StateCompleted {
		e.logger.Warn("run status changed", attrs...)
		return
	}
	e.logger.Info("run status changed", attrs...)
}

func pollReason(status types.RunState) string {
	switch status {
	case types.StateTimedOut:
		return "run did not finish within the poll timeout"
	case types.StateFetchFailed:
		return "run status could not be fetched"
	}
	return ""
}

// finish aggregates, gates, alerts and logs the outcome of a pass.
func (e *Engine) finish(ctx context.Context, runs []types.RunResult, p Params) *Result {
	report := aggregate.Build(aggregate.Meta{
		HubRunID:    p.HubRunID,
		TriggeredBy: p.TriggeredBy,
		TotalRepos:  p.TotalRepos,
		Timestamp:   e.now().UTC(),
		Thresholds:  p.Thresholds,
	}, runs)
	gate.Evaluate(report, p.Thresholds)

	if report.ThresholdExceeded {
		metrics.GateBreaches.Add(ctx, 1)
	}
	e.raiseAlerts(ctx, report)

	e.logger.Info("aggregation complete",
		"hubRunID", report.HubRunID,
		"total", report.TotalRepos,
		"dispatched", report.DispatchedRepos,
		"missing", report.MissingDispatchMetadata,
		"passed", report.PassedRuns,
		"failed", report.FailedRuns,
		"thresholdExceeded", report.ThresholdExceeded,
	)
	return &Result{Report: report, Runs: runs}
}

func (e *Engine) raiseAlerts(ctx context.Context, report *types.AggregateReport) {
	if e.alertFn == nil {
		return
	}
	now := e.now().UTC()

	for _, rs := range report.Runs {
		if rs.Passed() {
			continue
		}
		msg := fmt.Sprintf("%s run %s: %s/%s", rs.Repo, runLabel(rs.RunID), rs.Status, rs.Conclusion)
		if rs.Error != "" {
			msg += ": " + rs.Error
		}
		e.alertFn(ctx, types.Alert{
			AlertID:   ulid.Make().String(),
			Level:     types.AlertLevelWarning,
			HubRunID:  report.HubRunID,
			Repo:      rs.Repo,
			Message:   msg,
			Details:   map[string]interface{}{"status": string(rs.Status), "conclusion": rs.Conclusion},
			Timestamp: now,
		})
	}

	if report.ThresholdExceeded {
		e.alertFn(ctx, types.Alert{
			AlertID:   ulid.Make().String(),
			Level:     types.AlertLevelError,
			HubRunID:  report.HubRunID,
			Message:   fmt.Sprintf("fleet thresholds exceeded: %v", report.ThresholdViolations),
			Details:   map[string]interface{}{"violations": report.ThresholdViolations},
			Timestamp: now,
		})
	}
	if report.MissingDispatchMetadata > 0 {
		msg := fmt.Sprintf("%d of %d expected repos have no dispatch metadata", report.MissingDispatchMetadata, report.TotalRepos)
		e.alertFn(ctx, types.Alert{
			AlertID:   ulid.Make().String(),
			Level:     types.AlertLevelError,
			HubRunID:  report.HubRunID,
			Message:   msg,
			Details:   map[string]interface{}{"missing": report.MissingDispatchMetadata, "total": report.TotalRepos},
			Timestamp: now,
		})
	}
}

func runLabel(id int64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprint(id)
}
