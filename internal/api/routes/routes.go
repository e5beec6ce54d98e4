package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/api/handlers"
	"crew-orchestrator/internal/api/middleware"
	"crew-orchestrator/internal/config"
	"crew-orchestrator/internal/repository"
)

func SetupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	log *logrus.Logger,
	users repository.UserRepository,
	executionHandler *handlers.ExecutionHandler,
	checkpointHandler *handlers.CheckpointHandler,
	webhookHandler *handlers.WebhookHandler,
) {
	// Health check
	router.GET("/health", executionHandler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// User-facing endpoints, bearer token auth
		executions := v1.Group("/executions", middleware.RequireUser(users, log))
		{
			executions.POST("/start", executionHandler.Start)
			executions.GET("/:id/status", executionHandler.GetStatus)
			executions.GET("/:id/messages", executionHandler.GetMessages)
			executions.GET("/:id/stream", executionHandler.Stream)
			executions.DELETE("/:id", executionHandler.Cancel)
		}

		checkpoints := v1.Group("/checkpoints", middleware.RequireUser(users, log))
		{
			checkpoints.GET("/pending", checkpointHandler.ListPending)
			checkpoints.GET("/:id", checkpointHandler.Get)
			checkpoints.POST("/:id/approve", checkpointHandler.Approve)
			checkpoints.POST("/:id/reject", checkpointHandler.Reject)
		}

		// Runner callbacks, shared secret auth
		webhook := v1.Group("/webhook", middleware.RequireWebhookToken(cfg.Webhook.SecretToken, log))
		{
			webhook.POST("/hitl", webhookHandler.HITL)
			webhook.POST("/stream", webhookHandler.Stream)
		}
	}
}
