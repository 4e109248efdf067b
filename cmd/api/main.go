package main

import (
	"github.com/gin-gonic/gin"

	"prodreport/internal/config"
	"prodreport/internal/database"
	"prodreport/internal/middleware"
	"prodreport/internal/modules/allocation"
	"prodreport/internal/modules/reporting"
	"prodreport/internal/modules/reports"
	"prodreport/internal/modules/scheduler"
	"prodreport/internal/pkg/cache"
	"prodreport/internal/pkg/clock"
	jwtsvc "prodreport/internal/pkg/jwt"
	"prodreport/internal/pkg/logger"
	"prodreport/internal/repository"
)

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

	var cacheClient *cache.Client
	if cfg.RedisAddr != "" {
		cacheClient, err = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer cacheClient.Close()
	} else {
		log.Warn("REDIS_ADDR not set, summary cache and run lock disabled")
	}

	tokens := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)
	clk := clock.New()

	allocService := allocation.NewService(
		reportRepo, workorderRepo, cfg.Rules, nil, clk, log)

	var summaryCache reporting.SummaryCache
	if cacheClient != nil {
		summaryCache = cacheClient
	}
	reportingService := reporting.NewService(reportRepo, summaryCache, log)
	reportingHandler := reporting.NewHandler(reportingService)

	hub := scheduler.NewHub()
	defer hub.Close()

	var locker scheduler.RunLocker
	if cacheClient != nil {
		locker = scheduler.NewRedisLocker(cacheClient.Client())
	}
	schedService := scheduler.NewService(
		allocService, reportRepo, schedRepo, runLogRepo, locker, hub,
		cfg.Rules.AllPackagingKeywords(), cfg.AllocationRangeDays, clk, log)
	schedHandler := scheduler.NewHandler(schedService, hub, log)

	reportsService := reports.NewService(
		reportRepo, workorderRepo, allocService, schedRepo,
		cfg.Rules, cfg.AllocationRangeDays, clk, log)
	reportsHandler := reports.NewHandler(reportsService)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")
	{
		protected := v1.Group("/")
		protected.Use(middleware.Auth(tokens))
		{
			reportsHandler.RegisterRoutes(protected)
			reportingHandler.RegisterRoutes(protected)

			sched := protected.Group("/scheduler")
			sched.Use(middleware.SupervisorOnly())
			schedHandler.RegisterRoutes(sched)
		}
	}

	log.WithField("addr", cfg.HTTPAddr).Info("api listening")
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
