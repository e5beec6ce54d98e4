package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/api/handlers"
	"crew-orchestrator/internal/api/routes"
	"crew-orchestrator/internal/config"
	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/repository"
	"crew-orchestrator/internal/services/crewrunner"
	"crew-orchestrator/internal/services/ledger"
	"crew-orchestrator/internal/services/notifier"
	"crew-orchestrator/internal/services/orchestrator"
	"crew-orchestrator/internal/services/stream"
	"crew-orchestrator/pkg/postgres"
	"crew-orchestrator/pkg/redis"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.Log.Level != "" {
		logrusLevel, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			logger.WithError(err).Fatal("Failed to parse log level")
		}
		logger.SetLevel(logrusLevel)
	}

	// Set Gin mode based on environment
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Setup CORS
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := db.AutoMigrate(
		&models.UserEntity{},
		&models.ClientEntity{},
		&models.ProjectEntity{},
		&models.ExecutionEntity{},
		&models.CheckpointEntity{},
		&models.ActivityEntity{},
	); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database schema")
	}

	// Redis is optional; without it event dedupe falls back to the
	// database unique constraints alone.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize Redis client")
		}
		defer redisClient.Close()
	} else {
		logger.Warn("Redis not configured, event dedupe hint disabled")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.DB)
	projectRepo := repository.NewProjectRepository(db.DB)
	executionRepo := repository.NewExecutionRepository(db.DB)
	checkpointRepo := repository.NewCheckpointRepository(db.DB)
	activityRepo := repository.NewActivityRepository(db.DB)
	unitOfWork := repository.NewUnitOfWork(db.DB)

	// Initialize services
	runnerClient := crewrunner.NewClient(cfg, logger)
	eventLedger := ledger.New(activityRepo, checkpointRepo, redisClient, logger)
	streamManager := stream.NewManager(cfg.Stream.MaxConnectionsPerUser, logger)

	reviewNotifier := notifier.NewNoop()
	if cfg.Telegram.BotToken != "" {
		reviewNotifier, err = notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize telegram notifier")
		}
		logger.Info("Telegram review notifications enabled")
	}

	service := orchestrator.NewService(
		cfg,
		logger,
		executionRepo,
		checkpointRepo,
		activityRepo,
		projectRepo,
		unitOfWork,
		runnerClient,
		eventLedger,
		streamManager,
		reviewNotifier,
	)

	// Initialize handlers
	executionHandler := handlers.NewExecutionHandler(service, cfg, logger)
	checkpointHandler := handlers.NewCheckpointHandler(service, logger)
	webhookHandler := handlers.NewWebhookHandler(service, logger)

	// Setup routes
	routes.SetupRoutes(router, cfg, logger, userRepo, executionHandler, checkpointHandler, webhookHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("HTTP server shutdown completed successfully")
	}

	logger.Info("Server exited")
}
