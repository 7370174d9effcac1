package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitealert/internal/app"
)

var pruneDays int

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "remove notifications older than N days (default: retention.days)")
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old notifications",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, _ []string) error {
	days := pruneDays
	if !cmd.Flags().Changed("days") {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		days = cfg.Retention.Days
		if days <= 0 {
			days = 30
		}
	}
	if days <= 0 {
		return fmt.Errorf("--days must be > 0")
	}
	return withLocal(cmd.Context(), func(l *app.Local) error {
		n := l.Store.PruneOlderThan(days)
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d notification(s) older than %d days\n", n, days)
		return nil
	})
}
