package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"prodreport/internal/config"
	"prodreport/internal/database"
	"prodreport/internal/modules/allocation"
	"prodreport/internal/modules/scheduler"
	"prodreport/internal/pkg/cache"
	"prodreport/internal/pkg/clock"
	"prodreport/internal/pkg/logger"
	"prodreport/internal/repository"
)

// The scheduler daemon runs allocation ticks on the interval stored in the
// database. It shares the settings row with the API, so enable/disable and
// interval changes made there take effect on the next tick.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	reportRepo := repository.NewReportRepository(db)
	workorderRepo := repository.NewWorkorderRepository(db)
	schedRepo := repository.NewSchedulerRepository(db)
	runLogRepo := repository.NewAllocationLogRepository(db)

	var locker scheduler.RunLocker
	if cfg.RedisAddr != "" {
		cacheClient, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer cacheClient.Close()
		locker = scheduler.NewRedisLocker(cacheClient.Client())
	} else {
		log.Warn("REDIS_ADDR not set, running without the cross-process run lock")
	}

	clk := clock.New()
	allocService := allocation.NewService(
		reportRepo, workorderRepo, cfg.Rules, nil, clk, log)

	svc := scheduler.NewService(
		allocService, reportRepo, schedRepo, runLogRepo, locker, nil,
		cfg.Rules.AllPackagingKeywords(), cfg.AllocationRangeDays, clk, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A previous crash can leave the is_running flag wedged; this process
	// owns the flag, so clear it on startup.
	if err := svc.ClearStuck(ctx); err != nil {
		log.WithError(err).Warn("could not clear run flag on startup")
	}

	log.Info("scheduler daemon started")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("scheduler loop exited")
		os.Exit(1)
	}
	log.Info("scheduler daemon stopped")
}
