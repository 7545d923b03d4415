package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dwsmith1983/fleetgate/internal/artifact"
	"github.com/dwsmith1983/fleetgate/internal/extract"
	"github.com/dwsmith1983/fleetgate/internal/metrics"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

const reportFileName = "report.json"

// RunOffline aggregates a directory tree of already-downloaded report.json
// files without touching the provider. Each file counts as one dispatched
// repo; a file that does not parse becomes an invalid_report run. When
// p.TotalRepos is unset it defaults to the number of files found.
func (e *Engine) RunOffline(ctx context.Context, dir string, p Params) (*Result, error) {
	paths, err := findReports(dir)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "fleetgate.aggregate_offline")
	defer span.End()

	e.logger.Info("offline aggregation started", "dir", dir, "reports", len(paths))

	runs := make([]types.RunResult, 0, len(paths))
	for _, path := range paths {
		runs = append(runs, e.loadReport(ctx, dir, path))
	}
	return e.finish(ctx, runs, p), nil
}

func (e *Engine) loadReport(ctx context.Context, root, path string) types.RunResult {
	res := types.RunResult{RunStatus: types.RunStatus{
		Repo:       repoFromPath(root, path),
		Status:     types.StateUnknown,
		Conclusion: types.ConclusionUnknown,
	}}
	rs := &res.RunStatus
	defer func() { metrics.RecordRun(ctx, string(rs.Status)) }()

	data, err := os.ReadFile(path)
	if err != nil {
		e.advance(rs, types.StateMissingReport, types.ConclusionFailure, err.Error())
		return res
	}
	report, err := artifact.ParseReport(data)
	if err != nil {
		e.advance(rs, types.StateInvalidReport, types.ConclusionFailure, fmt.Sprintf("%s: %v", path, err))
		return res
	}

	if s, ok := report["repository"].(string); ok && s != "" {
		rs.Repo = s
	} else if s, ok := report["repo"].(string); ok && s != "" {
		rs.Repo = s
	}
	if v, ok := extract.ToFloat64(report["run_id"]); ok {
		rs.RunID = int64(v)
	}
	if s, ok := report["hub_correlation_id"].(string); ok {
		rs.CorrelationID = s
	}
	if s, ok := report["workflow"].(string); ok {
		rs.Workflow = s
	}

	extract.Apply(report, rs)
	res.Report = report
	e.advance(rs, types.StateCompleted, offlineConclusion(report, rs), "")
	return res
}

// offlineConclusion uses the report's own conclusion when it has one and
// otherwise derives it from the build and test results.
func offlineConclusion(report map[string]interface{}, rs *types.RunStatus) string {
	if s, ok := report["conclusion"].(string); ok && s != "" {
		return s
	}
	if rs.Build == types.ConclusionFailure || (rs.TestsFailed != nil && *rs.TestsFailed > 0) {
		return types.ConclusionFailure
	}
	return types.ConclusionSuccess
}

// findReports walks dir in lexical order collecting report.json files. An
// unreadable root is a configuration error.
func findReports(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading reports dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("reports dir %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == reportFileName {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning reports dir %s: %w", dir, err)
	}
	return paths, nil
}

// repoFromPath names a report by the directory holding it relative to root,
// e.g. root/acme/widgets/report.json is "acme/widgets".
func repoFromPath(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return filepath.Base(filepath.Dir(path))
	}
	return filepath.ToSlash(rel)
}
