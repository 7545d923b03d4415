package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetgate/internal/alert"
	"github.com/dwsmith1983/fleetgate/internal/archive"
	"github.com/dwsmith1983/fleetgate/internal/config"
	"github.com/dwsmith1983/fleetgate/internal/dispatch"
	"github.com/dwsmith1983/fleetgate/internal/engine"
	"github.com/dwsmith1983/fleetgate/internal/gate"
	"github.com/dwsmith1983/fleetgate/internal/github"
	"github.com/dwsmith1983/fleetgate/internal/report"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// DefaultOutput is where the aggregate JSON report is written.
const DefaultOutput = "fleet-report.json"

type aggregateFlags struct {
	configPath     string
	dispatchDir    string
	dispatchTable  string
	reportsDir     string
	thresholdsPath string
	hubRunID       string
	hubEvent       string
	totalRepos     int
	timeoutSec     int
	concurrency    int
	strict         bool
	output         string
	summary        string
	details        string
	logFormat      string
	verbose        bool
}

// NewAggregateCmd creates the aggregate command.
func NewAggregateCmd() *cobra.Command {
	f := &aggregateFlags{}

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Poll dispatched runs, aggregate their reports and evaluate the fleet gates",
		Long: `Aggregate waits for every dispatched CI run to finish, downloads each run's
report artifact and folds the results into one fleet report. With --strict the
command exits 1 when any run failed, any expected repo has no dispatch record or
a vulnerability threshold is exceeded.

Use --reports-dir to aggregate already-downloaded report.json files offline.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAggregate(cmd.Context(), f, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "path to fleetgate.yaml (default ./fleetgate.yaml when present)")
	fl.StringVar(&f.dispatchDir, "dispatch-dir", "", "directory of per-repo dispatch records")
	fl.StringVar(&f.dispatchTable, "dispatch-table", "", "DynamoDB table holding dispatch records")
	fl.StringVar(&f.reportsDir, "reports-dir", "", "aggregate report.json files under this directory without polling")
	fl.StringVar(&f.thresholdsPath, "thresholds", "", "thresholds YAML file")
	fl.StringVar(&f.hubRunID, "hub-run-id", envOrDefault("GITHUB_RUN_ID", ""), "id of the dispatching hub run (default: a new ULID)")
	fl.StringVar(&f.hubEvent, "hub-event", envOrDefault("GITHUB_EVENT_NAME", ""), "event that triggered the hub run")
	fl.IntVar(&f.totalRepos, "total-repos", 0, "number of repos the hub meant to dispatch (default: dispatched count)")
	fl.IntVar(&f.timeoutSec, "timeout-sec", 0, "per-run polling budget in seconds (default: pollTimeoutSec from config, else 1800)")
	fl.IntVar(&f.concurrency, "concurrency", 0, "repos processed concurrently (default 4)")
	fl.BoolVar(&f.strict, "strict", false, "exit 1 on failed runs, missing dispatches or exceeded thresholds")
	fl.StringVar(&f.output, "output", DefaultOutput, "aggregate JSON report path, - for stdout")
	fl.StringVar(&f.summary, "summary", "", "markdown summary path, - for stdout (default: $GITHUB_STEP_SUMMARY when set)")
	fl.StringVar(&f.details, "details", "", "markdown per-run details path, - for stdout")
	fl.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	cmd.MarkFlagsMutuallyExclusive("dispatch-dir", "dispatch-table", "reports-dir")

	return cmd
}

func runAggregate(ctx context.Context, f *aggregateFlags, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, f.logFormat, f.verbose)
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	thresholdsPath := f.thresholdsPath
	if thresholdsPath == "" {
		thresholdsPath = cfg.ThresholdsFile
	}
	thresholds, err := config.LoadThresholds(thresholdsPath)
	if err != nil {
		return err
	}
	if f.concurrency > 0 {
		cfg.Concurrency = f.concurrency
	}

	params := engine.Params{
		HubRunID:    f.hubRunID,
		TriggeredBy: f.hubEvent,
		TotalRepos:  f.totalRepos,
		Thresholds:  thresholds,
	}
	if params.HubRunID == "" {
		params.HubRunID = ulid.Make().String()
	}

	dispatcher, err := alert.NewDispatcher(ctx, cfg.Alerts, logger)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}
	var opts []engine.Option
	if dispatcher.Len() > 0 {
		opts = append(opts, engine.WithAlertFunc(dispatcher.AlertFunc()))
	}

	var res *engine.Result
	if f.reportsDir != "" {
		opts = append(opts, engine.WithLogger(logger), engine.WithConcurrency(cfg.Concurrency))
		res, err = engine.New(nil, nil, nil, opts...).RunOffline(ctx, f.reportsDir, params)
	} else {
		res, err = runOnline(ctx, f, cfg, params, logger, opts)
	}
	if err != nil {
		return err
	}

	code := gate.ExitCode(res.Report, f.strict)
	if err := writeReports(stdout, f, res); err != nil {
		return err
	}
	publishReport(ctx, cfg, res.Report, code, logger)
	printVerdict(stderr, res.Report, code, f.strict)

	if code != gate.ExitPass {
		return &ExitError{Code: code}
	}
	return nil
}

// runOnline loads the dispatch records and resolves the token before any
// polling starts, so configuration errors abort the whole invocation.
func runOnline(ctx context.Context, f *aggregateFlags, cfg *types.ProjectConfig, params engine.Params, logger *slog.Logger, opts []engine.Option) (*engine.Result, error) {
	source, err := dispatchSource(ctx, f, cfg, params.HubRunID, logger)
	if err != nil {
		return nil, err
	}
	entries, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}

	token, err := resolveToken(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	client, err := github.NewFromConfig(cfg.GitHub, token, logger)
	if err != nil {
		return nil, fmt.Errorf("creating provider client: %w", err)
	}

	return engine.NewOnline(cfg, client, f.timeoutSec, logger, opts...).Run(ctx, entries, params)
}

func dispatchSource(ctx context.Context, f *aggregateFlags, cfg *types.ProjectConfig, hubRunID string, logger *slog.Logger) (dispatch.Source, error) {
	if f.dispatchDir != "" {
		return dispatch.NewDirSource(f.dispatchDir, logger), nil
	}

	var table types.DynamoDBConfig
	if cfg.DispatchTable != nil {
		table = *cfg.DispatchTable
	}
	if f.dispatchTable != "" {
		table.TableName = f.dispatchTable
	}
	if table.TableName == "" {
		return nil, fmt.Errorf("one of --dispatch-dir, --dispatch-table or --reports-dir is required")
	}
	return dispatch.NewDynamoSource(ctx, &table, hubRunID, dispatch.WithDynamoLogger(logger))
}

func writeReports(stdout io.Writer, f *aggregateFlags, res *engine.Result) error {
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, res.Report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if f.output != "" {
		if err := writeOutput(stdout, f.output, buf.Bytes(), report.WriteFile); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	summary := []byte(report.RenderSummary(res.Report))
	switch {
	case f.summary != "":
		if err := writeOutput(stdout, f.summary, summary, report.WriteFile); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	case os.Getenv("GITHUB_STEP_SUMMARY") != "":
		if err := appendFile(os.Getenv("GITHUB_STEP_SUMMARY"), summary); err != nil {
			return fmt.Errorf("writing step summary: %w", err)
		}
	}

	if f.details != "" {
		details := []byte(report.RenderDetails(res.Report, res.Runs))
		if err := writeOutput(stdout, f.details, details, report.WriteFile); err != nil {
			return fmt.Errorf("writing details: %w", err)
		}
	}
	return nil
}

func appendFile(path string, data []byte) error {
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fh.Write(data); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

// publishReport archives the report and emits the completion event when
// configured. Failures are logged: the local report is already written.
func publishReport(ctx context.Context, cfg *types.ProjectConfig, agg *types.AggregateReport, code int, logger *slog.Logger) {
	if cfg.Archive == nil && cfg.Events == nil {
		return
	}

	var store *archive.Store
	var pub *archive.Publisher
	var err error
	if cfg.Archive != nil {
		if store, err = archive.NewStore(ctx, cfg.Archive); err != nil {
			logger.Error("creating report store", "error", err)
		}
	}
	if cfg.Events != nil {
		if pub, err = archive.NewPublisher(ctx, cfg.Events); err != nil {
			logger.Error("creating event publisher", "error", err)
		}
	}

	key, err := archive.Complete(ctx, store, pub, agg, code, time.Now())
	if err != nil {
		logger.Error("report publication failed", "hubRunID", agg.HubRunID, "error", err)
	}
	if key != "" {
		logger.Info("report archived", "bucket", cfg.Archive.Bucket, "key", key)
	}
}

func printVerdict(w io.Writer, agg *types.AggregateReport, code int, strict bool) {
	healthy := agg.FailedRuns == 0 && agg.MissingDispatchMetadata == 0 && !agg.ThresholdExceeded

	var verdict string
	switch {
	case healthy:
		verdict = color.GreenString("PASS")
	case code != gate.ExitPass:
		verdict = color.RedString("FAIL")
	case !strict:
		verdict = color.YellowString("FAIL (not enforced)")
	}

	_, _ = fmt.Fprintf(w, "%s %s: %d passed, %d failed, %d missing of %d; critical %d, high %d\n",
		verdict, agg.HubRunID,
		agg.PassedRuns, agg.FailedRuns, agg.MissingDispatchMetadata, agg.TotalRepos,
		agg.TotalCriticalVulns, agg.TotalHighVulns)
	for _, v := range agg.ThresholdViolations {
		_, _ = fmt.Fprintf(w, "  %s %s\n", color.RedString("threshold:"), v)
	}
}
