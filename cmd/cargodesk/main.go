package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/cargodesk/cargodesk/internal/app"
	"github.com/cargodesk/cargodesk/internal/audit"
	"github.com/cargodesk/cargodesk/internal/compliance"
	jobmetrics "github.com/cargodesk/cargodesk/internal/jobs"
	"github.com/cargodesk/cargodesk/internal/observability"
	"github.com/cargodesk/cargodesk/internal/platform/cache"
	"github.com/cargodesk/cargodesk/internal/platform/db"
	"github.com/cargodesk/cargodesk/internal/rbac"
	"github.com/cargodesk/cargodesk/internal/support"
	"github.com/cargodesk/cargodesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	rbacRepo := rbac.NewRepository(dbpool)
	resolver := rbac.NewResolver(rbacRepo, cfg.PermissionCacheTTL(), rbac.WithCacheObserver(metrics))
	rbacService := rbac.NewService(rbacRepo, resolver, audit.NewLogger(dbpool))
	rbacMiddleware := rbac.Middleware{Authorizer: resolver, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService, resolver, rbacMiddleware)

	ticketRepo := support.NewRepository(dbpool)
	dedup, err := compliance.NewDeduplicator(cfg.SLADedupStrategy, cfg.Intervals(), compliance.DedupDeps{
		Tickets: ticketRepo,
		Redis:   redisClient,
	})
	if err != nil {
		logger.Error("init deduplicator", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := cfg.AsynqRedis()
	jobClient, err := jobs.NewClient(redisOpts, cfg.NotifyQueue)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	scheduler, err := compliance.NewScheduler(compliance.SchedulerConfig{
		Tickets:       ticketRepo,
		Dedup:         dedup,
		Dispatcher:    jobClient,
		Thresholds:    cfg.Thresholds(),
		Routes:        cfg.Routes(),
		TicketTimeout: cfg.SLATicketTimeout,
		Logger:        logger,
		Metrics:       jobMetrics,
	})
	if err != nil {
		logger.Error("init sla scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	var runner *compliance.Runner
	if cfg.SLAMonitorEnabled {
		runner, err = compliance.NewRunner(cfg.SLACron, scheduler, logger)
		if err != nil {
			logger.Error("init sla runner", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Info("sla monitor disabled")
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		RBACMiddleware:    rbacMiddleware,
		RBACHandler:       rbacHandler,
		ComplianceHandler: compliance.NewHandler(scheduler, logger, rbacMiddleware),
		JobHandler:        jobs.NewHandler(inspector, cfg.NotifyQueue, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if runner != nil {
		runner.Start()
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		if runner != nil {
			runner.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
