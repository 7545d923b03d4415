// Package config handles loading and validation of fleetgate.yaml project
// configuration and the thresholds file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/fleetgate/internal/gate"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = "fleetgate.yaml"

// Environment variables that override file values.
const (
	EnvAPIURL         = "GITHUB_API_URL"
	EnvTokenSecretARN = "FLEETGATE_TOKEN_SECRET_ARN"
)

var tokenEnv = []string{"GITHUB_TOKEN", "GH_TOKEN"}

// Load reads and parses the configuration at path. An empty path tries
// DefaultFile and falls back to an empty configuration when it is absent.
// Environment overrides are applied before validation.
func Load(path string) (*types.ProjectConfig, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	var cfg types.ProjectConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case !explicit && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	applyEnv(&cfg, os.Getenv)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// applyEnv fills the token from the environment only when the file sets
// none, so an explicit github.token wins over GITHUB_TOKEN and GH_TOKEN.
func applyEnv(cfg *types.ProjectConfig, getenv func(string) string) {
	for _, name := range tokenEnv {
		if cfg.GitHub.Token != "" {
			break
		}
		if v := strings.TrimSpace(getenv(name)); v != "" {
			cfg.GitHub.Token = v
		}
	}
	if v := getenv(EnvAPIURL); v != "" {
		cfg.GitHub.APIURL = v
	}
	if v := getenv(EnvTokenSecretARN); v != "" {
		cfg.GitHub.TokenSecretARN = v
	}
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if cfg.PollTimeoutSec < 0 {
		return fmt.Errorf("pollTimeoutSec must not be negative")
	}
	if cfg.PollInitialSec < 0 || cfg.PollMaxSec < 0 {
		return fmt.Errorf("poll intervals must not be negative")
	}
	if cfg.PollMaxSec > 0 && cfg.PollInitialSec > cfg.PollMaxSec {
		return fmt.Errorf("pollInitialSec must not exceed pollMaxSec")
	}
	if cfg.CorrelationLookback < 0 {
		return fmt.Errorf("correlationLookback must not be negative")
	}
	if b := cfg.GitHub.Breaker; b != nil {
		for name, v := range map[string]string{"cooldown": b.Cooldown, "failWindow": b.FailWindow} {
			if v == "" {
				continue
			}
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("github.breaker.%s: %w", name, err)
			}
		}
	}
	if cfg.DispatchTable != nil && cfg.DispatchTable.TableName == "" {
		return fmt.Errorf("dispatchTable.tableName is required")
	}
	if cfg.Archive != nil && cfg.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required")
	}
	if cfg.Events != nil && cfg.Events.BusName == "" {
		return fmt.Errorf("events.busName is required")
	}
	for i, a := range cfg.Alerts {
		if a.Type == "" {
			return fmt.Errorf("alerts[%d].type is required", i)
		}
	}
	return nil
}

// LoadThresholds reads a thresholds YAML file. Keys absent from the file keep
// their defaults; an empty path returns the defaults.
func LoadThresholds(path string) (types.ThresholdConfig, error) {
	th := gate.DefaultThresholds()
	if path == "" {
		return th, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return th, fmt.Errorf("reading thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("parsing thresholds: %w", err)
	}
	if th.MaxCriticalVulns < 0 || th.MaxHighVulns < 0 {
		return th, fmt.Errorf("vulnerability maxima must not be negative")
	}
	return th, nil
}
