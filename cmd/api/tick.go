package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTickCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler tick and exit",
		Long:  "Runs the due-question, reminder, readiness-retry and check-in sweeps once. Useful from an external cron.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			a.scheduler.Tick(ctx)
			if err := a.media.Wait(ctx); err != nil {
				log.Warn("media jobs still running at exit", "err", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tick complete")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "upper bound for the tick")
	return cmd
}
