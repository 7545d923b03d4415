// Package lambda holds the AWS Lambda entry point for running one fleet
// aggregation pass against a DynamoDB dispatch table.
package lambda

// AggregateRequest is the input event of the aggregator Lambda.
type AggregateRequest struct {
	HubRunID   string `json:"hubRunId"`
	HubEvent   string `json:"hubEvent,omitempty"`
	TotalRepos int    `json:"totalRepos,omitempty"`
	Strict     bool   `json:"strict,omitempty"`
	TimeoutSec int    `json:"timeoutSec,omitempty"`
}

// AggregateResponse is returned once the report has been built and archived.
type AggregateResponse struct {
	HubRunID                string   `json:"hubRunId"`
	ExitCode                int      `json:"exitCode"`
	TotalRepos              int      `json:"totalRepos"`
	PassedRuns              int      `json:"passedRuns"`
	FailedRuns              int      `json:"failedRuns"`
	MissingDispatchMetadata int      `json:"missingDispatchMetadata"`
	ThresholdExceeded       bool     `json:"thresholdExceeded"`
	ThresholdViolations     []string `json:"thresholdViolations,omitempty"`
	ReportKey               string   `json:"reportKey,omitempty"`
}
