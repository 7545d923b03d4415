package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		report   string
		args     []string
		wantCode int
		wantOut  []string
	}{
		{
			name:    "passing report",
			report:  `{"repository": "acme/api", "results": {"coverage": 91.5, "mutation_score": 75}, "vulnerabilities": {"critical": 0, "high": 0}, "tools_ran": {"pytest": true}}`,
			wantOut: []string{"Report: acme/api", "91.5%", "pytest", "OK acme/api"},
		},
		{
			name:     "coverage below minimum",
			report:   `{"repository": "acme/api", "results": {"coverage": 50}}`,
			wantCode: 1,
			wantOut:  []string{"acme/api: coverage 50.0% below min 70.0%"},
		},
		{
			name:     "vulnerabilities above maximum",
			report:   `{"tool_metrics": {"trivy_critical": 1, "grype_critical": 1}}`,
			wantCode: 1,
			wantOut:  []string{"report: critical vulnerabilities 2 exceed max 0"},
		},
		{
			name:    "unmeasured metrics are not violations",
			report:  `{"repo": "acme/docs"}`,
			wantOut: []string{"Coverage:       -", "OK acme/docs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "report.json")
			writeFile(t, path, tt.report)

			stdout, _, err := execute(t, NewValidateCmd(), append([]string{path}, tt.args...)...)
			assert.Equal(t, tt.wantCode, ExitCode(err))
			for _, want := range tt.wantOut {
				assert.Contains(t, stdout, want)
			}
		})
	}
}

func TestValidate_CustomThresholds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "report.json"), `{"results": {"coverage": 50}, "vulnerabilities": {"high": 2}}`)
	writeFile(t, filepath.Join(dir, "thresholds.yaml"), "min_coverage: 40\nmax_high_vulns: 3\n")

	_, _, err := execute(t, NewValidateCmd(), filepath.Join(dir, "report.json"), "--thresholds", filepath.Join(dir, "thresholds.yaml"))
	assert.NoError(t, err)
}

func TestValidate_InvalidReports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.json"), `{"results": `)
	writeFile(t, filepath.Join(dir, "array.json"), `[1, 2]`)
	writeFile(t, filepath.Join(dir, "other.json"), `{"hub_correlation_id": "corr-other"}`)

	_, _, err := execute(t, NewValidateCmd(), filepath.Join(dir, "broken.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid report")

	_, _, err = execute(t, NewValidateCmd(), filepath.Join(dir, "array.json"))
	require.Error(t, err)

	_, _, err = execute(t, NewValidateCmd(), filepath.Join(dir, "other.json"), "--correlation-id", "corr-mine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	_, _, err = execute(t, NewValidateCmd(), filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "reading report")
}
