package engine

import (
	"log/slog"

	"github.com/dwsmith1983/fleetgate/internal/artifact"
	"github.com/dwsmith1983/fleetgate/internal/correlation"
	"github.com/dwsmith1983/fleetgate/internal/github"
	"github.com/dwsmith1983/fleetgate/internal/poller"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// NewOnline builds an Engine whose resolver, poller and fetcher all talk to
// client. timeoutSec, when positive, overrides the configured poll budget.
// opts are applied after the configured logger and concurrency.
func NewOnline(cfg *types.ProjectConfig, client *github.Client, timeoutSec int, logger *slog.Logger, opts ...Option) *Engine {
	if cfg == nil {
		cfg = &types.ProjectConfig{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	fetcher := artifact.NewFetcher(client,
		artifact.WithArtifactName(cfg.ArtifactName),
		artifact.WithLogger(logger),
	)
	resolver := correlation.New(client, fetcher.CorrelationToken,
		correlation.WithLookback(cfg.CorrelationLookback),
		correlation.WithLogger(logger),
	)
	p := poller.New(client, poller.ConfigFromProject(cfg, timeoutSec), poller.WithLogger(logger))

	opts = append([]Option{WithLogger(logger), WithConcurrency(cfg.Concurrency)}, opts...)
	return New(resolver, p, fetcher, opts...)
}
