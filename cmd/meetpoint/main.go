package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meetpoint/meetpoint/internal/app"
	"github.com/meetpoint/meetpoint/internal/auth"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	sessionManager := shared.NewSessionManager(redisClient, "meetpoint_session", cfg.SessionTTL, cfg.IsProduction())
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
	authzMiddleware := authz.Middleware{Service: authzService, Logger: logger}

	profilesService := profiles.NewService(profilesRepo, authzService, authzRepo, auditLogger, logger)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, profilesService, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	pipelineRepo := pipeline.NewRepository(pool)
	pipelineService := pipeline.NewService(pipelineRepo, authzService, locks, auditLogger, logger)

	projectsService := projects.NewService(projectsRepo, authzService, authzRepo, pipelineRepo, auditLogger, logger)
	tasksService := tasks.NewService(tasksRepo, pipelineService, authzService, auditLogger, logger)
	eventsService := events.NewService(eventsRepo, pipelineService, authzService, authzRepo, pipelineRepo, tasksRepo, auditLogger, logger)

	actionRegistry := automation.NewRegistry()
	automationRepo := automation.NewRepository(pool)
	automationService := automation.NewService(actionRegistry, automationRepo, pipelineService, authzService, locks, auditLogger, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	notifyService := notify.NewService(jobsClient, nil, logger)

	metrics := observability.NewMetrics()

	targetMux := app.NewTargetMux()
	targetMux.Register(resource.KindEvent, eventsService)
	targetMux.Register(resource.KindTask, tasksService)

	coordinator := automation.NewCoordinator(automationRepo, actionRegistry, cfg.AutomationStepTimeout, metrics, logger)
	automation.RegisterBuiltins(coordinator, targetMux, notifyService)
	automationService.SetRunner(coordinator)
	eventsService.SetRunner(coordinator)
	tasksService.SetRunner(coordinator)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		Accounts:          authService,
		AuthHandler:       authHandler,
		AuthzHandler:      authz.NewHandler(logger, authzService),
		ProfilesHandler:   profiles.NewHandler(logger, profilesService),
		ProjectsHandler:   projects.NewHandler(logger, projectsService),
		EventsHandler:     events.NewHandler(logger, eventsService),
		TasksHandler:      tasks.NewHandler(logger, tasksService),
		PipelineHandler:   pipeline.NewHandler(logger, pipelineService),
		AutomationHandler: automation.NewHandler(logger, automationService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		AuthzMiddleware:   authzMiddleware,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
