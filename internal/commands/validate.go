package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetgate/internal/artifact"
	"github.com/dwsmith1983/fleetgate/internal/config"
	"github.com/dwsmith1983/fleetgate/internal/extract"
	"github.com/dwsmith1983/fleetgate/internal/gate"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	var thresholdsPath, correlationID string

	cmd := &cobra.Command{
		Use:   "validate REPORT.json",
		Short: "Smoke-check a single report against the per-run thresholds",
		Long: `Validate parses one report.json, extracts its metrics and checks them against
the coverage and mutation minimums and the vulnerability maxima. It exits 1 when
the report is malformed or any threshold is violated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0], thresholdsPath, correlationID)
		},
	}
	cmd.Flags().StringVar(&thresholdsPath, "thresholds", "", "thresholds YAML file")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "require the report to carry this correlation id")
	return cmd
}

func runValidate(w io.Writer, path, thresholdsPath, correlationID string) error {
	thresholds, err := config.LoadThresholds(thresholdsPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}
	body, err := artifact.ParseReport(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := artifact.Validate(body, correlationID); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	rs := types.RunStatus{Repo: reportName(body, path)}
	extract.Apply(body, &rs)
	printMetrics(w, rs)

	violations := gate.CheckReport(rs, thresholds)
	if len(violations) == 0 {
		_, _ = fmt.Fprintf(w, "%s %s\n", color.GreenString("OK"), rs.Repo)
		return nil
	}
	for _, v := range violations {
		_, _ = fmt.Fprintf(w, "%s %s\n", color.RedString("FAIL"), v)
	}
	return &ExitError{Code: gate.ExitFail}
}

func reportName(body map[string]interface{}, path string) string {
	for _, key := range []string{"repository", "repo"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func printMetrics(w io.Writer, rs types.RunStatus) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Report: %s\n", rs.Repo)
	_, _ = fmt.Fprintf(w, "  Coverage:       %s\n", pct(rs.Coverage))
	_, _ = fmt.Fprintf(w, "  Mutation score: %s\n", pct(rs.MutationScore))
	_, _ = fmt.Fprintf(w, "  Critical vulns: %s\n", num(rs.CriticalVulns))
	_, _ = fmt.Fprintf(w, "  High vulns:     %s\n", num(rs.HighVulns))
	_, _ = fmt.Fprintf(w, "  Tests:          %s passed, %s failed\n", num(rs.TestsPassed), num(rs.TestsFailed))
	if rs.Build != "" {
		_, _ = fmt.Fprintf(w, "  Build:          %s\n", rs.Build)
	}
	if rs.Language != "" {
		_, _ = fmt.Fprintf(w, "  Language:       %s\n", rs.Language)
	}
	if len(rs.ToolsRan) > 0 {
		_, _ = fmt.Fprintf(w, "  Tools:          %s\n", strings.Join(rs.ToolsRan, ", "))
	}
}

func pct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func num(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
