package types

import "time"

// DispatchEntry is one record written by the dispatch phase for a targeted repo.
// RunID is zero when the dispatcher could not capture it synchronously.
type DispatchEntry struct {
	Repo          string `json:"repo" yaml:"repo" dynamodbav:"repo"`
	RunID         int64  `json:"run_id,omitempty" yaml:"run_id,omitempty" dynamodbav:"run_id,omitempty"`
	Workflow      string `json:"workflow" yaml:"workflow" dynamodbav:"workflow"`
	CorrelationID string `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty" dynamodbav:"correlation_id,omitempty"`
}

// RunStatus is the serialisable outcome of one repo's run. Metric fields are
// pointers so that "not measured" stays distinct from zero.
type RunStatus struct {
	Repo          string   `json:"repo"`
	RunID         int64    `json:"run_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Workflow      string   `json:"workflow,omitempty"`
	Status        RunState `json:"status"`
	Conclusion    string   `json:"conclusion"`
	Error         string   `json:"error,omitempty"`

	Coverage      *float64 `json:"coverage,omitempty"`
	MutationScore *float64 `json:"mutation_score,omitempty"`
	CriticalVulns *int     `json:"critical_vulns,omitempty"`
	HighVulns     *int     `json:"high_vulns,omitempty"`
	TestsPassed   *int     `json:"tests_passed,omitempty"`
	TestsFailed   *int     `json:"tests_failed,omitempty"`
	Build         string   `json:"build,omitempty"`
	Language      string   `json:"language,omitempty"`
	ToolsRan      []string `json:"tools_ran,omitempty"`
}

// Passed reports whether the run completed with a successful conclusion.
// Every other combination counts as a failure.
func (r RunStatus) Passed() bool {
	return r.Status == StateCompleted && r.Conclusion == ConclusionSuccess
}

// RunResult is the rendering view of a run: the serialisable status plus the
// full parsed report body. Report never reaches the JSON report.
type RunResult struct {
	RunStatus
	Report map[string]interface{} `json:"-"`
}

// ThresholdConfig holds the fleet gates and per-run report minimums.
type ThresholdConfig struct {
	MaxCriticalVulns int     `yaml:"max_critical_vulns" json:"max_critical_vulns"`
	MaxHighVulns     int     `yaml:"max_high_vulns" json:"max_high_vulns"`
	MinCoverage      float64 `yaml:"min_coverage" json:"min_coverage"`
	MinMutationScore float64 `yaml:"min_mutation_score" json:"min_mutation_score"`
}

// AggregateReport is the batch-level result of one aggregation pass.
type AggregateReport struct {
	HubRunID                string    `json:"hub_run_id"`
	Timestamp               time.Time `json:"timestamp"`
	TriggeredBy             string    `json:"triggered_by"`
	TotalRepos              int       `json:"total_repos"`
	DispatchedRepos         int       `json:"dispatched_repos"`
	MissingDispatchMetadata int       `json:"missing_dispatch_metadata"`

	Runs []RunStatus `json:"runs"`

	PassedRuns         int            `json:"passed_runs"`
	FailedRuns         int            `json:"failed_runs"`
	TotalCriticalVulns int            `json:"total_critical_vulns"`
	TotalHighVulns     int            `json:"total_high_vulns"`
	AvgCoverage        *float64       `json:"avg_coverage,omitempty"`
	AvgMutationScore   *float64       `json:"avg_mutation_score,omitempty"`
	Languages          map[string]int `json:"languages,omitempty"`
	Tools              map[string]int `json:"tools,omitempty"`

	Thresholds          ThresholdConfig `json:"thresholds"`
	ThresholdExceeded   bool            `json:"threshold_exceeded"`
	ThresholdViolations []string        `json:"threshold_violations,omitempty"`
	CoverageViolations  []string        `json:"coverage_violations,omitempty"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	AlertID   string                 `json:"alertId,omitempty"`
	Level     AlertLevel             `json:"level"`
	HubRunID  string                 `json:"hubRunId,omitempty"`
	Repo      string                 `json:"repo,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// LifecycleEvent is published when an aggregation pass finishes.
type LifecycleEvent struct {
	EventType         EventKind `json:"eventType"`
	HubRunID          string    `json:"hubRunId"`
	TotalRepos        int       `json:"totalRepos"`
	PassedRuns        int       `json:"passedRuns"`
	FailedRuns        int       `json:"failedRuns"`
	Missing           int       `json:"missingDispatchMetadata"`
	ThresholdExceeded bool      `json:"thresholdExceeded"`
	ExitCode          int       `json:"exitCode"`
	ReportKey         string    `json:"reportKey,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
