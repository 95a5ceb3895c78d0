package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meetpoint/meetpoint/internal/app"
	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/automation"
	"github.com/meetpoint/meetpoint/internal/events"
	"github.com/meetpoint/meetpoint/internal/notify"
	"github.com/meetpoint/meetpoint/internal/observability"
	"github.com/meetpoint/meetpoint/internal/pipeline"
	"github.com/meetpoint/meetpoint/internal/platform/cache"
	"github.com/meetpoint/meetpoint/internal/platform/db"
	"github.com/meetpoint/meetpoint/internal/profiles"
	"github.com/meetpoint/meetpoint/internal/projects"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
	"github.com/meetpoint/meetpoint/internal/tasks"
	"github.com/meetpoint/meetpoint/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	locks := shared.NewScopeLocks()

	profilesRepo := profiles.NewRepository(pool)
	projectsRepo := projects.NewRepository(pool)
	eventsRepo := events.NewRepository(pool)
	tasksRepo := tasks.NewRepository(pool)

	registry := resource.NewRegistry()
	registry.Register(resource.KindProfile, profilesRepo.Exists)
	registry.Register(resource.KindProject, projectsRepo.Exists)
	registry.Register(resource.KindEvent, eventsRepo.Exists)
	registry.Register(resource.KindTask, tasksRepo.Exists)

	authzRepo := authz.NewRepository(pool)
	authzService := authz.NewService(authzRepo, registry, auditLogger, logger)

	pipelineRepo := pipeline.NewRepository(pool)
	pipelineService := pipeline.NewService(pipelineRepo, authzService, locks, auditLogger, logger)

	tasksService := tasks.NewService(tasksRepo, pipelineService, authzService, auditLogger, logger)
	eventsService := events.NewService(eventsRepo, pipelineService, authzService, authzRepo, pipelineRepo, tasksRepo, auditLogger, logger)

	metrics := observability.NewMetrics()
	deliverer := &notify.LogDeliverer{Logger: logger}
	notifyService := notify.NewService(nil, deliverer, logger)

	actionRegistry := automation.NewRegistry()
	automationRepo := automation.NewRepository(pool)

	targetMux := app.NewTargetMux()
	targetMux.Register(resource.KindEvent, eventsService)
	targetMux.Register(resource.KindTask, tasksService)

	coordinator := automation.NewCoordinator(automationRepo, actionRegistry, cfg.AutomationStepTimeout, metrics, logger)
	automation.RegisterBuiltins(coordinator, targetMux, notifyService)
	eventsService.SetRunner(coordinator)
	tasksService.SetRunner(coordinator)

	scanJob := &jobs.ExpirationScanJob{
		Redis:   redisClient,
		Stages:  automationRepo,
		Resolve: pipelineService,
		Listers: map[resource.Kind]jobs.TargetLister{
			resource.KindEvent: eventsRepo,
			resource.KindTask:  tasksRepo,
		},
		Runner:  coordinator,
		Metrics: metrics,
		Logger:  logger,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Deliverer: deliverer,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeExpirationScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirationScanCron, Task: jobs.NewExpirationScanTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
