// Package types defines the public domain types for the fleetgate run aggregation engine.
package types

// RunState is the lifecycle status of one repo's run as tracked by the engine.
// Provider statuses are carried verbatim; engine-assigned failures use the
// constants below.
type RunState string

// RunState values. The pending group mirrors the CI provider's non-terminal
// statuses; everything else is terminal.
const (
	StateUnknown    RunState = "unknown"
	StateQueued     RunState = "queued"
	StateInProgress RunState = "in_progress"
	StateWaiting    RunState = "waiting"
	StatePending    RunState = "pending"
	StateRequested  RunState = "requested"
	StateCompleted  RunState = "completed"

	StateMissingRunID  RunState = "missing_run_id"
	StateFetchFailed   RunState = "fetch_failed"
	StateTimedOut      RunState = "timed_out"
	StateInvalidReport RunState = "invalid_report"
	StateMissingReport RunState = "missing_report"
)

// IsPending reports whether the state belongs to the provider's pending group.
func (s RunState) IsPending() bool {
	switch s {
	case StateQueued, StateInProgress, StateWaiting, StatePending, StateRequested:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is expected from s.
func (s RunState) IsTerminal() bool {
	return s != "" && s != StateUnknown && !s.IsPending()
}

// Conclusion values used by the engine. Provider conclusions (cancelled,
// skipped, neutral, ...) are carried verbatim.
const (
	ConclusionSuccess  = "success"
	ConclusionFailure  = "failure"
	ConclusionUnknown  = "unknown"
	ConclusionTimedOut = "timed_out"
)

// FailureCategory classifies why a remote call failed.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
	AlertSQS     AlertType = "sqs"
	AlertS3      AlertType = "s3"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// EventKind classifies published lifecycle events.
type EventKind string

const (
	EventAggregationCompleted EventKind = "FleetAggregationCompleted"
	EventGateFailed           EventKind = "FleetGateFailed"
)
