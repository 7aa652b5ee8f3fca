package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type dbPinger interface {
	PingContext(ctx context.Context) error
}

type valkeyPinger interface {
	Ping(ctx context.Context) error
}

type dispatcherState interface {
	IsRunning() bool
}

// HealthHandler reports component health. MySQL and Valkey are both hard
// dependencies here: invitations live in MySQL, job records, queues and
// rate-limit counters in Valkey, so either one unreachable means the
// pipeline is down, not degraded.
type HealthHandler struct {
	db           dbPinger
	redis        valkeyPinger
	dispatcher   dispatcherState
	checkTimeout time.Duration
}

func NewHealthHandler(db dbPinger, redis valkeyPinger, dispatcher dispatcherState) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redis:        redis,
		dispatcher:   dispatcher,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses (DB, Redis, dispatcher).
// @Summary Health check
// @Description Returns overall status with DB and Redis connectivity and dispatcher state
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	redisStatus := "up"
	if err := h.redis.Ping(ctx); err != nil {
		redisStatus = "down"
		overallStatus = "down"
	}

	// A stopped dispatcher still accepts enqueues, so it only degrades.
	dispatcherStatus := "running"
	if !h.dispatcher.IsRunning() {
		dispatcherStatus = "stopped"
		if overallStatus == "ok" {
			overallStatus = "degraded"
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"redis": map[string]any{
				"status": redisStatus,
			},
			"dispatcher": map[string]any{
				"status": dispatcherStatus,
			},
		},
	})
}
