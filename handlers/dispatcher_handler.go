package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/invitedesk/invite-dispatch-service/internal/dispatch"
	"github.com/invitedesk/invite-dispatch-service/pkg/response"
)

type DispatcherHandler struct {
	runner *dispatch.Runner
}

func NewDispatcherHandler(runner *dispatch.Runner) *DispatcherHandler {
	return &DispatcherHandler{runner: runner}
}

// Start godoc
// @Summary Start the dispatcher
// @Description Starts the background dispatch loop; no-op when already running
// @Tags dispatcher
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/dispatcher/start [post]
func (h *DispatcherHandler) Start(c echo.Context) error {
	alreadyRunning := h.runner.IsRunning()

	if err := h.runner.Start(context.Background()); err != nil {
		return response.InternalServerError(c, err)
	}

	message := "Dispatcher started"
	if alreadyRunning {
		message = "Dispatcher is already running"
	}

	return response.OkWithMessage(c, message, h.runner.GetStatus())
}

// Stop godoc
// @Summary Stop the dispatcher
// @Description Stops the background dispatch loop; no-op when not running
// @Tags dispatcher
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/dispatcher/stop [post]
func (h *DispatcherHandler) Stop(c echo.Context) error {
	wasRunning := h.runner.IsRunning()

	if err := h.runner.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	message := "Dispatcher stopped"
	if !wasRunning {
		message = "Dispatcher is not running"
	}

	return response.OkWithMessage(c, message, h.runner.GetStatus())
}

// Status godoc
// @Summary Get dispatcher status
// @Description Returns the dispatch loop's run state and counters
// @Tags dispatcher
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/dispatcher/status [get]
func (h *DispatcherHandler) Status(c echo.Context) error {
	return response.Ok(c, h.runner.GetStatus())
}
