// Package alert implements alert dispatching to multiple sinks.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/fleetgate/internal/metrics"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Sink is an alert destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

// Dispatcher routes alerts to configured sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from alert configs.
func NewDispatcher(ctx context.Context, configs []types.AlertConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// AddSink appends a sink to the dispatcher.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Len returns the number of configured sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch sends an alert to all configured sinks. A failing sink is logged
// and does not stop delivery to the others.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	for _, sink := range d.sinks {
		attrs := metric.WithAttributes(attribute.String("sink", sink.Name()))
		if err := sink.Send(ctx, alert); err != nil {
			metrics.AlertsFailed.Add(ctx, 1, attrs)
			d.logger.Error("alert delivery failed", "sink", sink.Name(), "alertID", alert.AlertID, "error", err)
			continue
		}
		metrics.AlertsDispatched.Add(ctx, 1, attrs)
	}
}

// AlertFunc returns a function suitable for use as the engine's alert callback.
func (d *Dispatcher) AlertFunc() func(context.Context, types.Alert) {
	return d.Dispatch
}

func newSink(ctx context.Context, cfg types.AlertConfig) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(), nil
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.AlertFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.AlertSNS:
		return NewSNSSink(ctx, cfg.TopicARN)
	case types.AlertSQS:
		return NewSQSSink(ctx, cfg.QueueURL)
	case types.AlertS3:
		return NewS3Sink(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}

// subject is the one-line summary used by sinks that carry a title.
func subject(alert types.Alert) string {
	scope := alert.Repo
	if scope == "" {
		scope = alert.HubRunID
	}
	if scope == "" {
		scope = "fleet"
	}
	return fmt.Sprintf("[%s] %s", alert.Level, scope)
}
