// Package commands implements the CLI subcommands for the fleetgate binary.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dwsmith1983/fleetgate/internal/secrets"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// ExitError carries a non-zero process exit status without an error message,
// used when the command ran correctly but the gate failed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

// newLogger builds the CLI logger. format is "text" (default) or "json".
func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q, want text or json", format)
	}
}

// resolveToken finds the provider token or fails: online mode cannot work
// anonymously against private repositories.
func resolveToken(ctx context.Context, cfg *types.ProjectConfig, r *secrets.Resolver) (string, error) {
	if r == nil {
		r = secrets.NewResolver()
	}
	token, err := r.Token(ctx, cfg.GitHub.Token, cfg.GitHub.TokenSecretARN)
	if err != nil {
		return "", fmt.Errorf("resolving provider token: %w", err)
	}
	return token, nil
}

// writeOutput writes data to path, or to w when path is "-".
func writeOutput(w io.Writer, path string, data []byte, write func(string, []byte) error) error {
	if path == "-" {
		_, err := w.Write(data)
		return err
	}
	return write(path, data)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
