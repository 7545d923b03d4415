package github

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// NewFromConfig builds a client from the github section of the project
// configuration. extra options are applied last.
func NewFromConfig(cfg types.GitHubConfig, token string, logger *slog.Logger, extra ...Option) (*Client, error) {
	opts := []Option{
		WithLogger(logger),
		WithBaseURL(cfg.APIURL),
		WithToken(token),
	}
	if cfg.TimeoutSec > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}))
	}
	if cfg.Breaker != nil {
		bc, err := breakerConfig(cfg.Breaker)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithBreaker(bc))
	}
	return New(append(opts, extra...)...), nil
}

func breakerConfig(b *types.BreakerConfig) (BreakerConfig, error) {
	bc := BreakerConfig{FailThreshold: b.FailThreshold}
	var err error
	if b.Cooldown != "" {
		if bc.Cooldown, err = time.ParseDuration(b.Cooldown); err != nil {
			return bc, fmt.Errorf("parsing breaker cooldown: %w", err)
		}
	}
	if b.FailWindow != "" {
		if bc.FailWindow, err = time.ParseDuration(b.FailWindow); err != nil {
			return bc, fmt.Errorf("parsing breaker failWindow: %w", err)
		}
	}
	return bc, nil
}
