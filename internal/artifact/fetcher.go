// Package artifact downloads a run's report artifact and validates its body.
package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/dwsmith1983/fleetgate/internal/github"
	"github.com/dwsmith1983/fleetgate/internal/metrics"
)

// DefaultName is the artifact name CI workflows upload their report under.
const DefaultName = "ci-report"

const (
	reportFile     = "report.json"
	maxReportBytes = 32 << 20
)

// Sentinel errors mapped by the engine onto terminal run statuses.
var (
	// ErrNoArtifact means the run uploaded no usable report artifact.
	ErrNoArtifact = errors.New("report artifact not found")
	// ErrInvalidReport means the report is malformed or belongs to another dispatch.
	ErrInvalidReport = errors.New("invalid report")
)

// Client is the subset of the CI provider API the fetcher needs.
type Client interface {
	ListRunArtifacts(ctx context.Context, repo string, runID int64) ([]github.Artifact, error)
	DownloadArtifact(ctx context.Context, repo string, artifactID int64) ([]byte, error)
}

// Fetcher retrieves report bodies from run artifacts.
type Fetcher struct {
	client Client
	name   string
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithArtifactName overrides the preferred artifact name.
func WithArtifactName(name string) Option {
	return func(f *Fetcher) {
		if name != "" {
			f.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(client Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		name:   DefaultName,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch downloads and validates the report of a terminal run. Errors wrap
// ErrNoArtifact or ErrInvalidReport when the cause is the artifact itself;
// anything else is a transport failure.
func (f *Fetcher) Fetch(ctx context.Context, repo string, runID int64, expectedCorrelationID, workflow string) (map[string]interface{}, error) {
	report, err := f.download(ctx, repo, runID)
	if err != nil {
		metrics.RecordArtifact(ctx, outcome(err))
		return nil, err
	}
	if err := Validate(report, expectedCorrelationID); err != nil {
		metrics.RecordArtifact(ctx, "invalid")
		return nil, fmt.Errorf("%s run %d: %w", repo, runID, err)
	}
	metrics.RecordArtifact(ctx, "ok")
	f.logger.Info("report fetched", "repo", repo, "runID", runID, "workflow", workflow)
	return report, nil
}

// CorrelationToken returns the hub_correlation_id stamped into a run's report,
// or "" if the report carries none.
func (f *Fetcher) CorrelationToken(ctx context.Context, repo string, runID int64) (string, error) {
	report, err := f.download(ctx, repo, runID)
	if err != nil {
		return "", err
	}
	tok, _ := report[correlationKey].(string)
	return tok, nil
}

func (f *Fetcher) download(ctx context.Context, repo string, runID int64) (map[string]interface{}, error) {
	artifacts, err := f.client.ListRunArtifacts(ctx, repo, runID)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts for %s run %d: %w", repo, runID, err)
	}
	art, ok := selectArtifact(artifacts, f.name)
	if !ok {
		return nil, fmt.Errorf("%s run %d has no %q artifact: %w", repo, runID, f.name, ErrNoArtifact)
	}

	data, err := f.client.DownloadArtifact(ctx, repo, art.ID)
	if err != nil {
		return nil, fmt.Errorf("downloading artifact %s for %s run %d: %w", art.Name, repo, runID, err)
	}

	raw, err := readReport(data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s for %s run %d: %w", art.Name, repo, runID, err)
	}
	report, err := ParseReport(raw)
	if err != nil {
		return nil, fmt.Errorf("artifact %s for %s run %d: %w", art.Name, repo, runID, err)
	}
	return report, nil
}

// selectArtifact prefers an exact name match, then any name ending in
// "report". Expired artifacts cannot be downloaded and are skipped.
func selectArtifact(artifacts []github.Artifact, name string) (github.Artifact, bool) {
	for _, a := range artifacts {
		if !a.Expired && a.Name == name {
			return a, true
		}
	}
	for _, a := range artifacts {
		if !a.Expired && strings.HasSuffix(a.Name, "report") {
			return a, true
		}
	}
	return github.Artifact{}, false
}

// readReport returns the first report.json member of a zip archive.
func readReport(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %v: %w", err, ErrInvalidReport)
	}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || path.Base(zf.Name) != reportFile {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %v: %w", zf.Name, err, ErrInvalidReport)
		}
		body, err := io.ReadAll(io.LimitReader(rc, maxReportBytes))
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %v: %w", zf.Name, err, ErrInvalidReport)
		}
		return body, nil
	}
	return nil, fmt.Errorf("no %s in archive: %w", reportFile, ErrNoArtifact)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNoArtifact):
		return "missing"
	case errors.Is(err, ErrInvalidReport):
		return "invalid"
	default:
		return "error"
	}
}
