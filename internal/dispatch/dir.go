// Package dispatch loads the per-repo dispatch records written by the dispatch
// phase, from a local directory or a DynamoDB table.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Source yields the dispatch entries of one fleet run, in dispatch order.
// An error means the metadata itself is unreadable and the run must abort.
type Source interface {
	Load(ctx context.Context) ([]types.DispatchEntry, error)
}

// DirSource reads one JSON or YAML file per repo from a directory.
type DirSource struct {
	dir    string
	logger *slog.Logger
}

// NewDirSource creates a DirSource.
func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{dir: dir, logger: logger}
}

// Load reads every *.json, *.yaml and *.yml file in the directory, ordered by
// file name. Only an unreadable directory is an error: files that cannot be
// read or parsed and records without a repo are logged and skipped.
func (s *DirSource) Load(_ context.Context) ([]types.DispatchEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dispatch dir %s: %w", s.dir, err)
	}

	var out []types.DispatchEntry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable dispatch record", "file", name, "error", err)
			continue
		}

		var e types.DispatchEntry
		if ext == ".json" {
			err = json.Unmarshal(data, &e)
		} else {
			err = yaml.Unmarshal(data, &e)
		}
		if err != nil {
			s.logger.Warn("skipping malformed dispatch record", "file", name, "error", err)
			continue
		}

		if e.Repo == "" {
			s.logger.Warn("skipping dispatch record without repo", "file", name)
			continue
		}
		out = append(out, e)
	}

	s.logger.Info("dispatch metadata loaded", "dir", s.dir, "entries", len(out))
	return out, nil
}
