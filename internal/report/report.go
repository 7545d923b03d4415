// Package report renders an aggregation snapshot as a JSON report and Markdown
// summaries. Rendering is a pure projection: it never queries the provider and
// never changes a run's status.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Statuses projects rendering views onto their serialisable part, dropping the
// report bodies.
func Statuses(runs []types.RunResult) []types.RunStatus {
	out := make([]types.RunStatus, len(runs))
	for i, r := range runs {
		out[i] = r.RunStatus
	}
	return out
}

// WriteJSON writes the aggregate report as indented JSON. Map keys are sorted
// by encoding/json, so equal reports produce equal bytes.
func WriteJSON(w io.Writer, report *types.AggregateReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding aggregate report: %w", err)
	}
	return nil
}

// RenderSummary renders fleet totals, the gate verdict and the failed runs.
func RenderSummary(report *types.AggregateReport) string {
	var b strings.Builder

	b.WriteString("# Fleet Aggregation Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	row(&b, "Hub run", code(report.HubRunID))
	row(&b, "Triggered by", orDash(report.TriggeredBy))
	row(&b, "Timestamp", report.Timestamp.UTC().Format(time.RFC3339))
	row(&b, "Total repos", fmt.Sprint(report.TotalRepos))
	row(&b, "Dispatched", fmt.Sprint(report.DispatchedRepos))
	row(&b, "Missing dispatch metadata", fmt.Sprint(report.MissingDispatchMetadata))
	row(&b, "Passed", fmt.Sprint(report.PassedRuns))
	row(&b, "Failed", fmt.Sprint(report.FailedRuns))
	row(&b, "Critical vulnerabilities", fmt.Sprintf("%d (max %d)", report.TotalCriticalVulns, report.Thresholds.MaxCriticalVulns))
	row(&b, "High vulnerabilities", fmt.Sprintf("%d (max %d)", report.TotalHighVulns, report.Thresholds.MaxHighVulns))
	row(&b, "Average coverage", percent(report.AvgCoverage))
	row(&b, "Average mutation score", percent(report.AvgMutationScore))

	if report.ThresholdExceeded {
		b.WriteString("\n**Thresholds: EXCEEDED**\n\n")
		for _, v := range report.ThresholdViolations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	} else {
		b.WriteString("\n**Thresholds: OK**\n")
	}

	var failed []types.RunStatus
	for _, rs := range report.Runs {
		if !rs.Passed() {
			failed = append(failed, rs)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Failed runs\n\n")
		b.WriteString("| Repo | Run | Status | Conclusion | Reason |\n|---|---|---|---|---|\n")
		for _, rs := range failed {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				cell(rs.Repo), runID(rs.RunID), rs.Status, cell(rs.Conclusion), cell(orDash(rs.Error)))
		}
	}

	if len(report.CoverageViolations) > 0 {
		b.WriteString("\n## Coverage warnings\n\n")
		for _, v := range report.CoverageViolations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}

	if len(report.Languages) > 0 {
		b.WriteString("\n## Languages\n\n| Language | Repos |\n|---|---|\n")
		for _, k := range sortedKeys(report.Languages) {
			fmt.Fprintf(&b, "| %s | %d |\n", cell(k), report.Languages[k])
		}
	}
	if len(report.Tools) > 0 {
		b.WriteString("\n## Tools\n\n| Tool | Repos |\n|---|---|\n")
		for _, k := range sortedKeys(report.Tools) {
			fmt.Fprintf(&b, "| %s | %d |\n", cell(k), report.Tools[k])
		}
	}
	return b.String()
}

// RenderDetails renders one section per repo, including the full report body
// when one was fetched.
func RenderDetails(report *types.AggregateReport, runs []types.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fleet Run Details: %s\n", orDash(report.HubRunID))

	for _, r := range runs {
		rs := r.RunStatus
		fmt.Fprintf(&b, "\n## %s\n\n", rs.Repo)
		b.WriteString("| Field | Value |\n|---|---|\n")
		row(&b, "Run", runID(rs.RunID))
		if rs.Workflow != "" {
			row(&b, "Workflow", cell(rs.Workflow))
		}
		if rs.CorrelationID != "" {
			row(&b, "Correlation id", code(rs.CorrelationID))
		}
		row(&b, "Status", string(rs.Status))
		row(&b, "Conclusion", cell(rs.Conclusion))
		if rs.Error != "" {
			row(&b, "Error", cell(rs.Error))
		}
		row(&b, "Coverage", percent(rs.Coverage))
		row(&b, "Mutation score", percent(rs.MutationScore))
		row(&b, "Critical vulnerabilities", count(rs.CriticalVulns))
		row(&b, "High vulnerabilities", count(rs.HighVulns))
		row(&b, "Tests passed", count(rs.TestsPassed))
		row(&b, "Tests failed", count(rs.TestsFailed))
		row(&b, "Build", orDash(rs.Build))
		row(&b, "Language", orDash(rs.Language))
		if len(rs.ToolsRan) > 0 {
			row(&b, "Tools", cell(strings.Join(rs.ToolsRan, ", ")))
		}

		if len(r.Report) > 0 {
			body, err := json.MarshalIndent(r.Report, "", "  ")
			if err != nil {
				fmt.Fprintf(&b, "\n_report body could not be rendered: %v_\n", err)
				continue
			}
			b.WriteString("\n<details><summary>report.json</summary>\n\n```json\n")
			b.Write(body)
			b.WriteString("\n```\n\n</details>\n")
		}
	}
	return b.String()
}

// WriteFile writes rendered output, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func row(b *strings.Builder, k, v string) {
	fmt.Fprintf(b, "| %s | %s |\n", k, v)
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func count(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func runID(id int64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprint(id)
}

func code(s string) string {
	if s == "" {
		return "-"
	}
	return "`" + s + "`"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
