// Package main implements the sitealert daemon and its local CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sitealert/internal/app"
	"sitealert/internal/config"
	logx "sitealert/pkg/logx"
)

var (
	cfgPath  string
	logLevel string
	version  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sitealert",
	Short: "Notification engine for the construction dashboard",
	Long: `sitealert keeps the local notification store for a dashboard user.

"run" starts the daemon: realtime feed, delivery channels, retention and
the debug endpoint. The other commands work on the persisted store
directly and should not be used while the daemon holds a sqlite file
with a short busy timeout.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./sitealert.json", "path to config (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for one-shot commands")
}

// withLocal loads the config, opens the local core and closes it when fn
// returns. The state is flushed on close.
func withLocal(ctx context.Context, fn func(*app.Local) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logx.NewConsole(logLevel)
	local, err := app.OpenLocal(ctx, cfg, log, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	runErr := fn(local)
	if err := local.Close(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("close store: %w", err)
	}
	return runErr
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
