package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// DefaultEventSource is the EventBridge source when none is configured.
const DefaultEventSource = "fleetgate"

// EventBridgeAPI is the subset of the EventBridge client used by Publisher.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher emits lifecycle events for finished aggregation passes.
type Publisher struct {
	client  EventBridgeAPI
	busName string
	source  string
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithEventBridgeClient sets a custom EventBridge client.
func WithEventBridgeClient(c EventBridgeAPI) PublisherOption {
	return func(p *Publisher) { p.client = c }
}

// NewPublisher creates an event publisher for cfg.
func NewPublisher(ctx context.Context, cfg *types.EventsConfig, opts ...PublisherOption) (*Publisher, error) {
	if cfg == nil || cfg.BusName == "" {
		return nil, fmt.Errorf("event bus name required")
	}
	p := &Publisher{busName: cfg.BusName, source: cfg.Source}
	if p.source == "" {
		p.source = DefaultEventSource
	}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		p.client = eventbridge.NewFromConfig(awsCfg)
	}
	return p, nil
}

// NewEvent summarises a gated report. The kind is FleetGateFailed when the
// pass exits non-zero and FleetAggregationCompleted otherwise.
func NewEvent(agg *types.AggregateReport, exitCode int, reportKey string, now time.Time) types.LifecycleEvent {
	kind := types.EventAggregationCompleted
	if exitCode != 0 {
		kind = types.EventGateFailed
	}
	return types.LifecycleEvent{
		EventType:         kind,
		HubRunID:          agg.HubRunID,
		TotalRepos:        agg.TotalRepos,
		PassedRuns:        agg.PassedRuns,
		FailedRuns:        agg.FailedRuns,
		Missing:           agg.MissingDispatchMetadata,
		ThresholdExceeded: agg.ThresholdExceeded,
		ExitCode:          exitCode,
		ReportKey:         reportKey,
		Timestamp:         now.UTC(),
	}
}

// Publish puts a single lifecycle event on the bus.
func (p *Publisher) Publish(ctx context.Context, evt types.LifecycleEvent) error {
	detail, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event detail: %w", err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(string(evt.EventType)),
			Detail:       aws.String(string(detail)),
		}},
	})
	if err != nil {
		return fmt.Errorf("publishing %s event: %w", evt.EventType, err)
	}
	if out.FailedEntryCount > 0 && len(out.Entries) > 0 {
		return fmt.Errorf("publishing %s event: %s", evt.EventType, aws.ToString(out.Entries[0].ErrorMessage))
	}
	return nil
}
