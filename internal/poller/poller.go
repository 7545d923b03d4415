// Package poller waits for a CI run to reach a terminal status.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dwsmith1983/fleetgate/internal/github"
	"github.com/dwsmith1983/fleetgate/internal/metrics"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Polling defaults.
const (
	DefaultTimeout         = 1800 * time.Second
	DefaultInitialInterval = 10 * time.Second
	DefaultMultiplier      = 1.5
	DefaultMaxInterval     = 60 * time.Second
)

// RunGetter fetches the current state of a run.
type RunGetter interface {
	GetRun(ctx context.Context, repo string, runID int64) (*github.Run, error)
}

// Config sets the wall-clock budget and backoff schedule.
type Config struct {
	Timeout         time.Duration
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultConfig returns 1800s timeout, 10s initial wait, x1.5, capped at 60s.
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Poller repeatedly queries a run's status until it is terminal or the
// timeout elapses.
type Poller struct {
	client RunGetter
	cfg    Config
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces time.Now (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithSleeper replaces the context-aware sleep between attempts.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Poller. Zero config fields fall back to the defaults.
func New(client RunGetter, cfg Config, opts ...Option) *Poller {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}

	p := &Poller{
		client: client,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Poll blocks until the run leaves the pending group and returns its status and
// conclusion. It never returns an error: a client failure yields
// (fetch_failed, unknown) and an exhausted budget yields (timed_out, timed_out).
func (p *Poller) Poll(ctx context.Context, repo string, runID int64) (types.RunState, string) {
	deadline := p.now().Add(p.cfg.Timeout)
	schedule := p.newBackOff()

	for attempt := 1; ; attempt++ {
		metrics.PollAttempts.Add(ctx, 1)

		run, err := p.client.GetRun(ctx, repo, runID)
		if err != nil {
			p.logger.Warn("run status fetch failed", "repo", repo, "runID", runID, "attempt", attempt, "error", err)
			return types.StateFetchFailed, types.ConclusionUnknown
		}

		state := types.RunState(run.Status)
		if state == "" {
			state = types.StateUnknown
		}
		if !state.IsPending() {
			conclusion := run.Conclusion
			if conclusion == "" {
				conclusion = types.ConclusionUnknown
			}
			p.logger.Debug("run polled", "repo", repo, "runID", runID, "attempt", attempt, "status", state, "conclusion", conclusion)
			return state, conclusion
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			p.logger.Warn("run poll timed out", "repo", repo, "runID", runID, "attempts", attempt, "timeout", p.cfg.Timeout)
			return types.StateTimedOut, types.ConclusionTimedOut
		}

		wait := schedule.NextBackOff()
		if wait > remaining {
			wait = remaining
		}
		p.logger.Debug("run pending", "repo", repo, "runID", runID, "status", state, "wait", wait)
		if err := p.sleep(ctx, wait); err != nil {
			p.logger.Warn("run poll interrupted", "repo", repo, "runID", runID, "error", err)
			return types.StateTimedOut, types.ConclusionTimedOut
		}
	}
}

// newBackOff builds a deterministic schedule: no jitter, capped interval.
func (p *Poller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.Multiplier = p.cfg.Multiplier
	b.MaxInterval = p.cfg.MaxInterval
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ConfigFromProject derives the poll schedule from the project configuration.
// timeoutSec, when positive, overrides the configured timeout.
func ConfigFromProject(cfg *types.ProjectConfig, timeoutSec int) Config {
	c := Config{}
	if cfg != nil {
		c.Timeout = time.Duration(cfg.PollTimeoutSec) * time.Second
		c.InitialInterval = seconds(cfg.PollInitialSec)
		c.MaxInterval = seconds(cfg.PollMaxSec)
	}
	if timeoutSec > 0 {
		c.Timeout = time.Duration(timeoutSec) * time.Second
	}
	return c
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
