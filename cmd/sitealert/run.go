package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sitealert/internal/app"
)

var runStopTimeout time.Duration

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runStopTimeout, "stop-timeout", 10*time.Second, "graceful shutdown budget")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the notification daemon",
	Long: `Run the notification daemon until SIGINT or SIGTERM.

The config file is watched; logging, delivery, retention and debug
sections apply without a restart.

Examples:
  sitealert run --config /etc/sitealert/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), runStopTimeout)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	// The supervisor context derives from ctx, so a signal also closes Done.
	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), runStopTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	if reason == app.StopFatalError {
		if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}
