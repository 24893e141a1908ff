package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/zulandar/dailyread/internal/config"
	"github.com/zulandar/dailyread/internal/dailyread"
)

func newDaemonCmd() *cobra.Command {
	var (
		configPath string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run \"upload all\" on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configPath, strict)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (environment only when empty)")
	cmd.Flags().BoolVar(&strict, "strict", false, "count runs with failed uploads as failed")
	return cmd
}

func runDaemon(cmd *cobra.Command, configPath string, strict bool) error {
	a, err := newApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.runner()
	if err != nil {
		return err
	}
	sched, err := config.ParseSchedule(a.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := newScheduler(ctx, sched, r, dailyread.Options{Upload: true, Strict: strict}, a.logger)
	fmt.Fprintf(cmd.OutOrStdout(), "Daily Read daemon started, schedule %q\n", a.cfg.Schedule)
	c.Start()

	<-ctx.Done()
	a.logger.Info("shutting down, waiting for a running cycle")
	<-c.Stop().Done()
	return nil
}

// cycleRunner is satisfied by *dailyread.Runner.
type cycleRunner interface {
	Run(ctx context.Context, opts dailyread.Options) (*dailyread.Summary, error)
}

// newScheduler returns a cron that runs one cycle per tick. A tick firing
// while a cycle is still running is skipped.
func newScheduler(ctx context.Context, sched cron.Schedule, r cycleRunner, opts dailyread.Options, logger *slog.Logger) *cron.Cron {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() {
		sum, err := r.Run(ctx, opts)
		if err != nil {
			logger.Error("scheduled run failed", "error", err)
			return
		}
		logger.Info("scheduled run finished", "run", sum.RunID, "orderers", len(sum.Orderers), "uploaded", sum.Uploaded, "failed", sum.Failed)
	}))
	return c
}
