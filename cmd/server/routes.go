package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/codemender/internal/handlers"
	"github.com/huangang/codemender/internal/middleware"
	"github.com/huangang/codemender/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	webhookLimiter := middleware.NewNamedRateLimiter("webhook", 10, 20)
	authLimiter := middleware.NewNamedRateLimiter("auth", 1, 5)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	api := r.Group("/api")
	{
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/refresh", svc.authHandler.Refresh)
		}

		api.POST("/webhooks/github", webhookLimiter.Middleware(), svc.webhookHandler.HandleGitHub)

		// SSE validates its own token; EventSource cannot send headers.
		api.GET("/events/ledger", svc.sseHandler.StreamLedgerEvents)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.PUT("/auth/password", svc.authHandler.ChangePassword)

			protected.GET("/dashboard/stats", svc.dashboardHandler.GetStats)
			protected.GET("/github/rate-limit", svc.projectHandler.RateLimit)

			projects := protected.Group("/projects")
			{
				projects.POST("/connect", svc.projectHandler.Connect)
				projects.GET("", svc.projectHandler.List)
				projects.GET("/:id", svc.projectHandler.Get)
				projects.PUT("/:id", svc.projectHandler.Update)
				projects.DELETE("/:id", svc.projectHandler.Delete)
				projects.POST("/:id/analyze", svc.projectHandler.Analyze)
				projects.GET("/:id/health", svc.issueHandler.Health)
				projects.GET("/:id/issues", svc.issueHandler.List)
				projects.GET("/:id/review-settings", svc.projectHandler.GetReviewSettings)
				projects.PUT("/:id/review-settings", svc.projectHandler.UpdateReviewSettings)
				projects.GET("/:id/pr-reviews", svc.projectHandler.ListPRReviews)
				projects.GET("/:id/test-runs", svc.projectHandler.ListTestRuns)
				projects.GET("/:id/pulls/:number/status", svc.projectHandler.PRStatus)
			}

			issues := protected.Group("/issues")
			{
				issues.GET("/:id", svc.issueHandler.Get)
				issues.POST("/:id/ignore", svc.issueHandler.Ignore)
				issues.POST("/:id/reopen", svc.issueHandler.Reopen)
				issues.POST("/:id/fix", svc.issueHandler.AutoFix)
			}

			admin := protected.Group("", middleware.AdminRequired())
			{
				admin.GET("/llm-configs", svc.llmConfigHandler.List)
				admin.GET("/llm-configs/active", svc.llmConfigHandler.GetActive)
				admin.GET("/llm-configs/:id", svc.llmConfigHandler.GetByID)
				admin.POST("/llm-configs", svc.llmConfigHandler.Create)
				admin.PUT("/llm-configs/:id", svc.llmConfigHandler.Update)
				admin.DELETE("/llm-configs/:id", svc.llmConfigHandler.Delete)

				admin.GET("/im-bots", svc.imBotHandler.List)
				admin.GET("/im-bots/active", svc.imBotHandler.GetAllActive)
				admin.GET("/im-bots/:id", svc.imBotHandler.GetByID)
				admin.POST("/im-bots", svc.imBotHandler.Create)
				admin.PUT("/im-bots/:id", svc.imBotHandler.Update)
				admin.DELETE("/im-bots/:id", svc.imBotHandler.Delete)

				admin.GET("/system-logs", svc.systemLogHandler.List)
				admin.GET("/system-logs/modules", svc.systemLogHandler.GetModules)
				admin.GET("/ai-usage", svc.aiUsageHandler.GetByPurpose)
			}
		}
	}
}
