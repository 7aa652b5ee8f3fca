package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/invitedesk/invite-dispatch-service/environments"
	"github.com/invitedesk/invite-dispatch-service/handlers"
	"github.com/invitedesk/invite-dispatch-service/internal/dispatch"
	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/middlewares"
	"github.com/invitedesk/invite-dispatch-service/internal/provider"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
	"github.com/invitedesk/invite-dispatch-service/internal/ratelimit"
	"github.com/invitedesk/invite-dispatch-service/internal/repository"
	"github.com/invitedesk/invite-dispatch-service/internal/retry"
	"github.com/invitedesk/invite-dispatch-service/internal/service"
	"github.com/invitedesk/invite-dispatch-service/pkg/database"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
	"github.com/invitedesk/invite-dispatch-service/pkg/redis"
	"github.com/invitedesk/invite-dispatch-service/pkg/validator"
	"github.com/invitedesk/invite-dispatch-service/routes"

	_ "github.com/invitedesk/invite-dispatch-service/docs" // swagger docs
)

// @title Invite Dispatch Service API
// @version 1.0
// @description Asynchronous WhatsApp invitation dispatch pipeline

// @contact.name API Support
// @contact.email platform@invitedesk.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// Local development convenience; deployments set real env vars
	_ = godotenv.Load()

	logger.Init()

	// Load config
	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Provider.APIKey == "" {
		logger.Fatalf("PROVIDER_API_KEY is required but not set")
	}
	if cfg.Provider.WebhookSecret == "" {
		logger.Fatalf("PROVIDER_WEBHOOK_SECRET is required but not set")
	}
	if cfg.Auth.OperatorAPIKey == "" {
		logger.Fatalf("OPERATOR_API_KEY is required but not set")
	}
	if cfg.Auth.AdminAPIKey == "" {
		logger.Fatalf("ADMIN_API_KEY is required but not set")
	}

	logger.Infof("Starting Invite Dispatch Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init redis; the queues, job records and rate limit counters live
	// there, so unlike a cache it is a hard dependency
	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Stores backed by Redis
	jobStore := redis.NewJobStore(redisClient, cfg.Dispatch.JobTTL)
	listStore := redis.NewListStore(redisClient)
	counterStore := redis.NewCounterStore(redisClient)
	markerStore := redis.NewMarkerStore(redisClient)

	// Repositories
	invitationRepo := repository.NewInvitationRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	guestRepo := repository.NewGuestRepository(db)

	// Provider client
	providerClient := provider.NewClient(cfg.Provider)

	// Queueing, rate limiting and retries
	priorityQueue := queue.NewPriorityQueue(listStore, jobStore)

	limiter := ratelimit.NewLimiter(counterStore, map[domain.JobType]ratelimit.Rule{
		domain.JobTypeWhatsAppSend: {
			Window:       cfg.RateLimit.Window,
			MaxPerWindow: cfg.RateLimit.MaxPerWindow,
		},
	})

	retryScheduler := retry.NewScheduler(markerStore, jobStore, priorityQueue,
		[]domain.JobType{domain.JobTypeWhatsAppSend})

	// Services
	jobService := service.NewJobService(priorityQueue, jobStore, templateRepo, guestRepo, cfg.Dispatch.MaxRetries)
	invitationService := service.NewInvitationService(invitationRepo, templateRepo, providerClient, jobService, cfg.Dispatch.MaxRetries)
	reconciler := service.NewReconciler(invitationRepo, jobStore, retryScheduler, cfg.Dispatch.MaxRetries)

	// Dispatch pipeline
	processor := dispatch.NewProcessor(priorityQueue, jobStore, limiter, retryScheduler)
	processor.Register(domain.JobTypeWhatsAppSend, dispatch.HandlerFunc(
		func(ctx context.Context, job *domain.Job) (string, error) {
			return invitationService.Send(ctx, job.Payload)
		}))

	runner := dispatch.NewRunner(processor, retryScheduler, cfg.Dispatch.PollInterval, cfg.Dispatch.Workers)

	// Retention sweep
	retention := service.NewRetentionSweeper(invitationRepo, cfg.Retention)
	if err := retention.Start(); err != nil {
		logger.Fatalf("Failed to start retention sweep: %v", err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient, runner)
	jobHandler := handlers.NewJobHandler(jobService)
	invitationHandler := handlers.NewInvitationHandler(invitationService, jobService)
	dispatcherHandler := handlers.NewDispatcherHandler(runner)
	webhookHandler := handlers.NewWebhookHandler(reconciler, cfg.Provider.WebhookSecret)

	// Auto-start dispatcher
	if os.Getenv("AUTO_START_DISPATCHER") != "false" {
		logger.Infof("Auto-starting dispatcher...")
		if err := runner.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start dispatcher: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			middlewares.APIKeyHeader,
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, healthHandler, jobHandler, invitationHandler, dispatcherHandler, webhookHandler, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancel context to signal all goroutines to stop
	cancel()

	// Stop dispatcher first (with timeout)
	if runner.IsRunning() {
		logger.Infof("Stopping dispatcher...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- runner.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping dispatcher: %v", err)
			} else {
				logger.Infof("Dispatcher stopped successfully")
			}
		case <-stopCtx.Done():
			logger.Warnf("Dispatcher stop timeout, forcing shutdown")
		}
	}

	// Stop retention sweep
	retention.Stop()

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Redis connection
	logger.Infof("Closing Redis connection...")
	redisClient.Close()

	logger.Infof("Graceful shutdown completed")
}
