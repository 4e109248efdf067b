package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"prodreport/internal/config"
	"prodreport/internal/database"
	"prodreport/internal/modules/allocation"
	"prodreport/internal/modules/scheduler"
	"prodreport/internal/pkg/cache"
	"prodreport/internal/pkg/clock"
	"prodreport/internal/pkg/logger"
	"prodreport/internal/repository"
)

// Exit codes for cron and shell wrappers: 0 success, 1 configuration
// error, 2 lock contention, 3 internal error.
const (
	exitOK = iota
	exitConfig
	exitRunInProgress
	exitInternal
)

// errConfig marks failures in configuration or wiring, before any run logic.
var errConfig = errors.New("configuration error")

func main() {
	root := &cobra.Command{
		Use:           "allocctl",
		Short:         "Control the quantity allocation scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runNowCmd(), statusCmd(), stopCmd(), startCmd(), setIntervalCmd(), unlockCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return exitRunInProgress
	case errors.Is(err, errConfig), errors.Is(err, scheduler.ErrDisabled),
		errors.Is(err, scheduler.ErrBadInterval):
		return exitConfig
	default:
		return exitInternal
	}
}

// buildService wires a scheduler service directly against the database, so
// the CLI works even when the API is down.
func buildService() (*scheduler.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	log := logger.New("warn", cfg.LogFormat)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, nil, err
	}

	reportRepo := repository.NewReportRepository(db)
	workorderRepo := repository.NewWorkorderRepository(db)
	schedRepo := repository.NewSchedulerRepository(db)
	runLogRepo := repository.NewAllocationLogRepository(db)

	cleanup := func() {}
	var locker scheduler.RunLocker
	if cfg.RedisAddr != "" {
		cacheClient, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errConfig, err)
		}
		cleanup = func() { _ = cacheClient.Close() }
		locker = scheduler.NewRedisLocker(cacheClient.Client())
	}

	clk := clock.New()
	allocService := allocation.NewService(
		reportRepo, workorderRepo, cfg.Rules, nil, clk, log)

	svc := scheduler.NewService(
		allocService, reportRepo, schedRepo, runLogRepo, locker, nil,
		cfg.Rules.AllPackagingKeywords(), cfg.AllocationRangeDays, clk, log)
	return svc, cleanup, nil
}

func runNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-now",
		Short: "Execute one allocation run immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := svc.RunOnce(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("run %s: %d/%d workorders succeeded in %s\n",
				outcome.RunID, outcome.Succeeded, outcome.Total,
				outcome.EndedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
			for _, wo := range outcome.Outcomes {
				fmt.Printf("  %-16s %-8s %s\n", wo.OrderNumber, verdict(wo.Success), wo.Message)
			}
			if outcome.TimedOut {
				fmt.Println("  (run timed out before visiting every workorder)")
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler settings and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()

			settings, logs, err := svc.Status(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("enabled:     %v\n", settings.Enabled)
			fmt.Printf("running:     %v\n", settings.IsRunning)
			fmt.Printf("interval:    %dm\n", settings.IntervalMinutes)
			if settings.WindowStart != "" {
				fmt.Printf("window:      %s-%s\n", settings.WindowStart, settings.WindowEnd)
			}
			fmt.Printf("runs:        %d ok / %d failed\n", settings.SuccessCount, settings.FailureCount)
			if settings.LastRunAt != nil {
				fmt.Printf("last run:    %s\n", settings.LastRunAt.Format(time.RFC3339))
			}
			if settings.NextRunAt != nil {
				fmt.Printf("next run:    %s\n", settings.NextRunAt.Format(time.RFC3339))
			}

			if len(logs) > 0 {
				fmt.Println("\nrecent runs:")
				for _, l := range logs {
					fmt.Printf("  %s  %-8s %d/%d workorders\n",
						l.StartedAt.Format(time.RFC3339), verdict(l.Success),
						l.WorkordersSucceeded, l.WorkordersTotal)
				}
			}
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Disable scheduled runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := svc.Stop(context.Background()); err != nil {
				return err
			}
			fmt.Println("scheduler disabled")
			return nil
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Enable scheduled runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := svc.Enable(context.Background()); err != nil {
				return err
			}
			fmt.Println("scheduler enabled")
			return nil
		},
	}
}

func setIntervalCmd() *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "set-interval",
		Short: "Change the tick interval in minutes",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := svc.SetInterval(context.Background(), minutes); err != nil {
				return err
			}
			fmt.Printf("interval set to %dm\n", minutes)
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 30, "interval between runs")
	return cmd
}

func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Force-clear the run flag after a crashed run",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := svc.ClearStuck(context.Background()); err != nil {
				return err
			}
			fmt.Println("run flag cleared")
			return nil
		},
	}
}

func verdict(success bool) string {
	if success {
		return "ok"
	}
	return "failed"
}
