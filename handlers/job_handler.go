package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/service"
	"github.com/invitedesk/invite-dispatch-service/pkg/response"
	"github.com/invitedesk/invite-dispatch-service/pkg/validator"
)

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(service *service.JobService) *JobHandler {
	return &JobHandler{service: service}
}

type CreateJobRequest struct {
	JobType      string            `json:"jobType,omitempty" validate:"omitempty,oneof=whatsapp_send"`
	Priority     string            `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
	EventID      int64             `json:"eventId" validate:"required"`
	GuestID      int64             `json:"guestId" validate:"required"`
	Recipient    string            `json:"recipient" validate:"required,e164"`
	TemplateName string            `json:"templateName" validate:"required"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// CreateJob godoc
// @Summary Enqueue a dispatch job
// @Description Creates a dispatch job for one invitation and queues it on its priority
// @Tags jobs
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Operator API key"
// @Param job body CreateJobRequest true "Job to enqueue"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/jobs [post]
func (h *JobHandler) CreateJob(c echo.Context) error {
	var req CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	job, err := h.service.Enqueue(c.Request().Context(), service.EnqueueParams{
		JobType:  domain.JobType(req.JobType),
		Priority: domain.Priority(req.Priority),
		Payload: domain.JobPayload{
			EventID:      req.EventID,
			GuestID:      req.GuestID,
			Recipient:    req.Recipient,
			TemplateName: req.TemplateName,
			Variables:    req.Variables,
		},
	})
	if err != nil {
		if errors.Is(err, service.ErrTemplateNotFound) {
			return response.BadRequestWithMessage(c, "template not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Job enqueued successfully", map[string]any{
		"jobId":    job.ID,
		"status":   job.Status,
		"priority": job.Priority,
	})
}

// GetJob godoc
// @Summary Get job status
// @Description Returns the current state of a dispatch job
// @Tags jobs
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Operator API key"
// @Param id path string true "Job ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/jobs/{id} [get]
func (h *JobHandler) GetJob(c echo.Context) error {
	job, err := h.service.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "job not found or expired")
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, job)
}
