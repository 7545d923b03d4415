// Package metrics exposes runtime counters via OpenTelemetry. Instruments bind
// to the global meter provider, so they are no-ops until telemetry is set up.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/dwsmith1983/fleetgate"

var meter = otel.Meter(instrumentationName)

var (
	RunsProcessed      = counter("fleetgate.runs.processed", "Repo pipelines finished, by terminal status")
	PollAttempts       = counter("fleetgate.poll.attempts", "Run status requests issued by the poller")
	CorrelationLookups = counter("fleetgate.correlation.lookups", "Correlation token lookups against run artifacts")
	ArtifactFetches    = counter("fleetgate.artifact.fetches", "Report artifact downloads, by outcome")
	GateBreaches       = counter("fleetgate.gate.breaches", "Aggregations whose vulnerability gate was exceeded")
	AlertsDispatched   = counter("fleetgate.alerts.dispatched", "Alerts delivered to a sink")
	AlertsFailed       = counter("fleetgate.alerts.failed", "Alerts a sink failed to deliver")
)

func counter(name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}

// RecordRun counts one finished repo pipeline.
func RecordRun(ctx context.Context, status string) {
	RunsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordArtifact counts one artifact fetch attempt with its outcome.
func RecordArtifact(ctx context.Context, outcome string) {
	ArtifactFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
