package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/fleetgate/internal/commands"
	"github.com/dwsmith1983/fleetgate/internal/telemetry"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "loading .env:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "fleetgate", version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			fmt.Fprintln(os.Stderr, "flushing telemetry:", err)
		}
	}()

	root := &cobra.Command{
		Use:   "fleetgate",
		Short: "Aggregate CI results across a fleet of repositories and gate on them",
		Long: `Fleetgate follows the CI runs a hub workflow dispatched to many repositories.
It waits for every run to finish, collects each run's report artifact, folds the
results into one fleet report and decides whether the fleet passes its quality
and security gates.`,
		Version:       version,
		SilenceErrors: true,
	}

	root.AddCommand(
		commands.NewAggregateCmd(),
		commands.NewValidateCmd(),
		commands.NewStatusCmd(),
	)

	err = root.ExecuteContext(ctx)
	var exitErr *commands.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return commands.ExitCode(err)
}
