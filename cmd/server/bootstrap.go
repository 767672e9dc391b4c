package main

import (
	"context"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/handlers"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/internal/services/webhook"
	"github.com/huangang/codemender/internal/utils"
	"github.com/huangang/codemender/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg       *config.Config
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *services.Scheduler
	stopRetry context.CancelFunc

	authHandler      *handlers.AuthHandler
	projectHandler   *handlers.ProjectHandler
	issueHandler     *handlers.IssueHandler
	webhookHandler   *handlers.WebhookHandler
	dashboardHandler *handlers.DashboardHandler
	healthHandler    *handlers.HealthHandler
	sseHandler       *handlers.SSEHandler
	llmConfigHandler *handlers.LLMConfigHandler
	imBotHandler     *handlers.IMBotHandler
	systemLogHandler *handlers.SystemLogHandler
	aiUsageHandler   *handlers.AIUsageHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	if sqlDB, err := db.DB(); err == nil {
		prometheus.MustRegister(collectors.NewDBStatsCollector(sqlDB, "codemender"))
	}

	services.InitSystemLogger(db)

	authService := services.NewAuthService(db, &cfg.JWT)
	if err := authService.CreateAdminIfNotExists(cfg.Admin); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	// Pipeline: snapshot -> findings -> ledger, fix -> PR, review -> merge.
	hosts := services.NewGitHubHostFactory(cfg.GitHub)
	snapshots := services.NewGitSnapshotProvider(cfg.Workspace)
	ai := services.NewAIService(db, &cfg.AI)
	analysis := services.NewAnalysisService(db, snapshots, services.NewLLMFindingGenerator(ai), cfg.GitHub, cfg.Workspace)
	fixer := services.NewFixService(db, services.NewLLMFixGenerator(ai), hosts, services.NewTestRunner(cfg.Tests), cfg.GitHub)
	router := webhook.NewRouter(db, hosts, services.NewLLMReviewEvaluator(ai), services.NewNotificationService(db), cfg.GitHub)

	processor := services.NewTaskProcessor(analysis, fixer)
	taskQueue := services.InitTaskQueue(cfg, processor)

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, processor)
		if worker != nil {
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start task worker")
			}
		}
	}

	retryCtx, stopRetry := context.WithCancel(context.Background())
	services.StartMergeRetryScheduler(retryCtx, services.NewMergeRetryService(db, hosts, cfg.GitHub), cfg.Scheduler.MergeRetryInterval)

	scheduler := services.NewScheduler(db, cfg.Scheduler, analysis)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Invalid scheduler configuration: %v", err)
	}

	projects := services.NewProjectService(db, hosts, snapshots, cfg.GitHub)
	issues := services.NewIssueService(db)

	return &appServices{
		cfg:       cfg,
		taskQueue: taskQueue,
		worker:    worker,
		scheduler: scheduler,
		stopRetry: stopRetry,

		authHandler: handlers.NewAuthHandler(authService),
		projectHandler: handlers.NewProjectHandler(projects, services.NewReviewSettingsService(db),
			services.NewPRStatusService(db, hosts, cfg.GitHub), analysis, taskQueue),
		issueHandler:     handlers.NewIssueHandler(projects, issues, fixer, taskQueue),
		webhookHandler:   handlers.NewWebhookHandler(router, cfg.GitHub, cfg.IsRelease()),
		dashboardHandler: handlers.NewDashboardHandler(services.NewDashboardService(db)),
		healthHandler:    handlers.NewHealthHandler(db),
		sseHandler:       handlers.NewSSEHandler(services.GetSSEHub(), projects),
		llmConfigHandler: handlers.NewLLMConfigHandler(services.NewLLMConfigService(db)),
		imBotHandler:     handlers.NewIMBotHandler(services.NewIMBotService(db)),
		systemLogHandler: handlers.NewSystemLogHandler(services.NewSystemLogService(db)),
		aiUsageHandler:   handlers.NewAIUsageHandler(services.NewAIUsageService(db)),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.stopRetry()
	s.scheduler.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Task queue close failed")
		}
	}
}
