package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetgate/internal/config"
	"github.com/dwsmith1983/fleetgate/internal/github"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "status OWNER/REPO RUN_ID",
		Short:         "Show the current status of one CI run",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || runID <= 0 {
				return fmt.Errorf("invalid run id %q", args[1])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return runStatus(ctx, cmd.OutOrStdout(), configPath, args[0], runID)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to fleetgate.yaml")
	return cmd
}

func runStatus(ctx context.Context, w io.Writer, configPath, repo string, runID int64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := resolveToken(ctx, cfg, nil)
	if err != nil {
		return err
	}
	client, err := github.NewFromConfig(cfg.GitHub, token, nil)
	if err != nil {
		return fmt.Errorf("creating provider client: %w", err)
	}

	run, err := client.GetRun(ctx, repo, runID)
	if err != nil {
		return fmt.Errorf("fetching run: %w", err)
	}

	state := types.RunState(run.Status)
	var label string
	switch {
	case state.IsPending():
		label = color.YellowString(run.Status)
	case run.Conclusion == types.ConclusionSuccess:
		label = color.GreenString(run.Conclusion)
	default:
		label = color.RedString(orDash(run.Conclusion))
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Run %d: %s\n", run.ID, repo)
	_, _ = fmt.Fprintf(w, "  Workflow:   %s\n", orDash(run.Name))
	_, _ = fmt.Fprintf(w, "  Title:      %s\n", orDash(run.DisplayTitle))
	_, _ = fmt.Fprintf(w, "  Status:     %s\n", run.Status)
	_, _ = fmt.Fprintf(w, "  Conclusion: %s\n", label)
	_, _ = fmt.Fprintf(w, "  Event:      %s\n", orDash(run.Event))
	if !run.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "  Created:    %s\n", run.CreatedAt.Format(time.RFC3339))
	}
	if run.HTMLURL != "" {
		_, _ = fmt.Fprintf(w, "  URL:        %s\n", run.HTMLURL)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
