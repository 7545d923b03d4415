package lambda

import (
	"context"
	"fmt"
	"time"

	"github.com/dwsmith1983/fleetgate/internal/archive"
	"github.com/dwsmith1983/fleetgate/internal/dispatch"
	"github.com/dwsmith1983/fleetgate/internal/engine"
	"github.com/dwsmith1983/fleetgate/internal/gate"
	"github.com/dwsmith1983/fleetgate/internal/poller"
)

// reserveSec is kept back from the invocation deadline for fetching,
// aggregation and archiving after polling stops.
const reserveSec = 60

// Handle runs one aggregation pass for the hub run named in req. A failing
// gate is reported through ExitCode, not as an invocation error.
func Handle(ctx context.Context, d *Deps, req AggregateRequest) (AggregateResponse, error) {
	if req.HubRunID == "" {
		return AggregateResponse{}, fmt.Errorf("hubRunId is required")
	}
	logger := d.Logger.With("hubRunID", req.HubRunID)

	source, err := dispatch.NewDynamoSource(ctx, d.Config.DispatchTable, req.HubRunID,
		dispatch.WithDDBClient(d.DDB),
		dispatch.WithDynamoLogger(logger),
	)
	if err != nil {
		return AggregateResponse{}, err
	}
	entries, err := source.Load(ctx)
	if err != nil {
		return AggregateResponse{}, err
	}

	var opts []engine.Option
	if d.AlertFn != nil {
		opts = append(opts, engine.WithAlertFunc(d.AlertFn))
	}
	timeoutSec := pollBudget(ctx, req.TimeoutSec, d.clock())
	eng := engine.NewOnline(d.Config, d.Client, timeoutSec, logger, opts...)

	res, err := eng.Run(ctx, entries, engine.Params{
		HubRunID:    req.HubRunID,
		TriggeredBy: req.HubEvent,
		TotalRepos:  req.TotalRepos,
		Thresholds:  d.Thresholds,
	})
	if err != nil {
		return AggregateResponse{}, err
	}

	agg := res.Report
	code := gate.ExitCode(agg, req.Strict)
	key, err := archive.Complete(ctx, d.Store, d.Publisher, agg, code, d.clock())
	if err != nil {
		logger.Error("report publication failed", "error", err)
	}

	logger.Info("aggregation complete",
		"exitCode", code,
		"passed", agg.PassedRuns,
		"failed", agg.FailedRuns,
		"missing", agg.MissingDispatchMetadata,
		"reportKey", key,
	)
	return AggregateResponse{
		HubRunID:                agg.HubRunID,
		ExitCode:                code,
		TotalRepos:              agg.TotalRepos,
		PassedRuns:              agg.PassedRuns,
		FailedRuns:              agg.FailedRuns,
		MissingDispatchMetadata: agg.MissingDispatchMetadata,
		ThresholdExceeded:       agg.ThresholdExceeded,
		ThresholdViolations:     agg.ThresholdViolations,
		ReportKey:               key,
	}, nil
}

// pollBudget caps the requested per-run poll timeout so polling stops
// reserveSec before the invocation deadline.
func pollBudget(ctx context.Context, requested int, now time.Time) int {
	if requested <= 0 {
		requested = int(poller.DefaultTimeout / time.Second)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return requested
	}
	left := int(deadline.Sub(now)/time.Second) - reserveSec
	if left < requested {
		return max(left, 1)
	}
	return requested
}

func (d *Deps) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}
