package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/invitedesk/invite-dispatch-service/environments"
	"github.com/invitedesk/invite-dispatch-service/handlers"
	"github.com/invitedesk/invite-dispatch-service/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	jobHandler *handlers.JobHandler,
	invitationHandler *handlers.InvitationHandler,
	dispatcherHandler *handlers.DispatcherHandler,
	webhookHandler *handlers.WebhookHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Provider callbacks authenticate with the body signature, not an API key
	e.POST("/webhooks/whatsapp/status", webhookHandler.StatusCallback)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Operator routes: job and invitation management
	jobs := v1.Group("/jobs", middlewares.APIKeyAuth(cfg.Auth.OperatorAPIKey))

	jobs.POST("", jobHandler.CreateJob)
	jobs.GET("/:id", jobHandler.GetJob)

	invitations := v1.Group("/invitations", middlewares.APIKeyAuth(cfg.Auth.OperatorAPIKey))

	invitations.GET("", invitationHandler.GetAllInvitations)
	invitations.GET("/stats", invitationHandler.GetStats)
	invitations.POST("/bulk", invitationHandler.BulkSend)
	invitations.POST("/:id/retry", invitationHandler.RetryInvitation)

	// Dispatcher control with its own API key
	dispatcher := v1.Group("/dispatcher", middlewares.APIKeyAuth(cfg.Auth.AdminAPIKey))

	dispatcher.POST("/start", dispatcherHandler.Start)
	dispatcher.POST("/stop", dispatcherHandler.Stop)
	dispatcher.GET("/status", dispatcherHandler.Status)
}
