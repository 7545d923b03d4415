// Package aggregate folds per-repo run outcomes into fleet-wide totals.
package aggregate

import (
	"math"
	"time"

	"github.com/dwsmith1983/fleetgate/internal/gate"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Meta carries the scalar parameters of one aggregation pass. TotalRepos is
// the expected fleet size; zero means "use the observed count".
type Meta struct {
	HubRunID    string
	TriggeredBy string
	TotalRepos  int
	Timestamp   time.Time
	Thresholds  types.ThresholdConfig
}

// Build summarises runs into an AggregateReport. Gates are not evaluated here;
// call gate.Evaluate on the result.
func Build(meta Meta, runs []types.RunResult) *types.AggregateReport {
	dispatched := len(runs)
	total := meta.TotalRepos
	if total <= 0 || total < dispatched {
		// Either unknown or under-stated: the observed count is the floor.
		total = dispatched
	}

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	report := &types.AggregateReport{
		HubRunID:                meta.HubRunID,
		Timestamp:               ts,
		TriggeredBy:             meta.TriggeredBy,
		TotalRepos:              total,
		DispatchedRepos:         dispatched,
		MissingDispatchMetadata: total - dispatched,
		Runs:                    make([]types.RunStatus, 0, dispatched),
		Thresholds:              meta.Thresholds,
	}

	var covSum, mutSum float64
	var covN, mutN int
	for _, r := range runs {
		rs := r.RunStatus
		report.Runs = append(report.Runs, rs)

		if rs.Passed() {
			report.PassedRuns++
		} else {
			report.FailedRuns++
		}
		if rs.CriticalVulns != nil {
			report.TotalCriticalVulns += *rs.CriticalVulns
		}
		if rs.HighVulns != nil {
			report.TotalHighVulns += *rs.HighVulns
		}
		if rs.Coverage != nil {
			covSum += *rs.Coverage
			covN++
		}
		if rs.MutationScore != nil {
			mutSum += *rs.MutationScore
			mutN++
		}
		if rs.Language != "" {
			if report.Languages == nil {
				report.Languages = map[string]int{}
			}
			report.Languages[rs.Language]++
		}
		for _, tool := range rs.ToolsRan {
			if report.Tools == nil {
				report.Tools = map[string]int{}
			}
			report.Tools[tool]++
		}
		report.CoverageViolations = append(report.CoverageViolations, gate.CheckRun(rs, meta.Thresholds)...)
	}

	report.AvgCoverage = average(covSum, covN)
	report.AvgMutationScore = average(mutSum, mutN)
	return report
}

// average returns nil when nothing was measured, else the mean to two decimals.
func average(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	avg := math.Round(sum/float64(n)*100) / 100
	return &avg
}
