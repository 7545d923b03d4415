// Package gate evaluates fleet and per-run results against configured thresholds.
package gate

import (
	"fmt"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Exit codes returned by ExitCode.
const (
	ExitPass = 0
	ExitFail = 1
)

// DefaultThresholds returns the built-in gates: no critical or high
// vulnerabilities and 70% coverage and mutation minimums.
func DefaultThresholds() types.ThresholdConfig {
	return types.ThresholdConfig{
		MaxCriticalVulns: 0,
		MaxHighVulns:     0,
		MinCoverage:      70,
		MinMutationScore: 70,
	}
}

// Evaluate compares the fleet vulnerability totals with the thresholds, records
// one violation per exceeded limit and sets ThresholdExceeded. It does not look
// at run conclusions: a fleet of green runs can still exceed its budget.
func Evaluate(report *types.AggregateReport, thresholds types.ThresholdConfig) {
	report.Thresholds = thresholds
	report.ThresholdViolations = nil

	if report.TotalCriticalVulns > thresholds.MaxCriticalVulns {
		report.ThresholdViolations = append(report.ThresholdViolations, fmt.Sprintf(
			"critical vulnerabilities %d exceed max %d", report.TotalCriticalVulns, thresholds.MaxCriticalVulns))
	}
	if report.TotalHighVulns > thresholds.MaxHighVulns {
		report.ThresholdViolations = append(report.ThresholdViolations, fmt.Sprintf(
			"high vulnerabilities %d exceed max %d", report.TotalHighVulns, thresholds.MaxHighVulns))
	}
	report.ThresholdExceeded = len(report.ThresholdViolations) > 0
}

// ExitCode maps a report to a process exit status. Only strict mode fails the
// invocation, and then on any failed run, any missing dispatch record or an
// exceeded threshold.
func ExitCode(report *types.AggregateReport, strict bool) int {
	if !strict {
		return ExitPass
	}
	if report.FailedRuns > 0 || report.MissingDispatchMetadata > 0 || report.ThresholdExceeded {
		return ExitFail
	}
	return ExitPass
}

// CheckRun returns the per-run minimum violations of a single report. Metrics
// the run did not measure are not violations.
func CheckRun(rs types.RunStatus, thresholds types.ThresholdConfig) []string {
	var out []string
	if rs.Coverage != nil && *rs.Coverage < thresholds.MinCoverage {
		out = append(out, fmt.Sprintf("%s: coverage %.1f%% below min %.1f%%", rs.Repo, *rs.Coverage, thresholds.MinCoverage))
	}
	if rs.MutationScore != nil && *rs.MutationScore < thresholds.MinMutationScore {
		out = append(out, fmt.Sprintf("%s: mutation score %.1f%% below min %.1f%%", rs.Repo, *rs.MutationScore, thresholds.MinMutationScore))
	}
	return out
}

// CheckReport is the smoke check used on a single report: per-run minimums plus
// the vulnerability maxima applied to that run alone.
func CheckReport(rs types.RunStatus, thresholds types.ThresholdConfig) []string {
	out := CheckRun(rs, thresholds)
	if rs.CriticalVulns != nil && *rs.CriticalVulns > thresholds.MaxCriticalVulns {
		out = append(out, fmt.Sprintf("%s: critical vulnerabilities %d exceed max %d", rs.Repo, *rs.CriticalVulns, thresholds.MaxCriticalVulns))
	}
	if rs.HighVulns != nil && *rs.HighVulns > thresholds.MaxHighVulns {
		out = append(out, fmt.Sprintf("%s: high vulnerabilities %d exceed max %d", rs.Repo, *rs.HighVulns, thresholds.MaxHighVulns))
	}
	return out
}
