package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/service"
	"github.com/invitedesk/invite-dispatch-service/pkg/response"
	"github.com/invitedesk/invite-dispatch-service/pkg/validator"
)

type InvitationHandler struct {
	invitations *service.InvitationService
	jobs        *service.JobService
}

func NewInvitationHandler(invitations *service.InvitationService, jobs *service.JobService) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
		jobs:        jobs,
	}
}

type BulkSendRequest struct {
	EventID      int64             `json:"eventId" validate:"required"`
	GuestIDs     []int64           `json:"guestIds" validate:"required,min=1,max=500"`
	TemplateName string            `json:"templateName" validate:"required"`
	Priority     string            `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
	Variables    map[string]string `json:"variables,omitempty"`
}

type RetryInvitationRequest struct {
	TemplateName string            `json:"templateName,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// GetAllInvitations godoc
// @Summary Get invitations
// @Description Retrieves a paginated list of invitations with optional status filter
// @Tags invitations
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Operator API key"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by provider status (pending, sent, delivered, read, failed)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/invitations [get]
func (h *InvitationHandler) GetAllInvitations(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	statusStr := c.QueryParam("status")

	// Convert status string to pointer (optional filter).
	var status *domain.ProviderStatus
	if statusStr != "" {
		parsedStatus := domain.ProviderStatus(statusStr)
		if !parsedStatus.Valid() {
			return response.BadRequestWithMessage(c, fmt.Sprintf("unknown status %q", statusStr))
		}
		status = &parsedStatus
	}

	invitations, totalCount, err := h.invitations.GetAllInvitations(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, invitations, page, pageSize, totalCount)
}

// GetStats godoc
// @Summary Get invitation statistics
// @Description Returns count of invitations by provider status
// @Tags invitations
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Operator API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/invitations/stats [get]
func (h *InvitationHandler) GetStats(c echo.Context) error {
	stats, err := h.invitations.GetStats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	var total int64
	for _, count := range stats {
		total += count
	}

	return response.Ok(c, map[string]any{
		"byStatus": stats,
		"total":    total,
	})
}

// BulkSend godoc
// @Summary Bulk-send invitations
// @Description Enqueues one dispatch job per guest of the event
// @Tags invitations
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Operator API key"
// @Param request body BulkSendRequest true "Bulk send parameters"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/invitations/bulk [post]
func (h *InvitationHandler) BulkSend(c echo.Context) error {
	var req BulkSendRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	jobIDs, err := h.jobs.BulkEnqueue(
		c.Request().Context(),
		req.EventID,
		req.GuestIDs,
		req.TemplateName,
		req.Variables,
		domain.Priority(req.Priority),
	)
	if err != nil {
		if errors.Is(err, service.ErrTemplateNotFound) {
			return response.BadRequestWithMessage(c, "template not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Invitations enqueued successfully", map[string]any{
		"jobIds": jobIDs,
		"count":  len(jobIDs),
	})
}

// RetryInvitation godoc
// @Summary Retry a failed invitation
// @Description Re-queues a terminally failed invitation, optionally with an updated template or variables
// @Tags invitations
// @Accept json
// @Produce json
// @Param x-dispatch-api-key header string true "Operator API key"
// @Param id path int true "Invitation ID"
// @Param request body RetryInvitationRequest false "Optional overrides"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/invitations/{id}/retry [post]
func (h *InvitationHandler) RetryInvitation(c echo.Context) error {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return response.BadRequest(c, fmt.Errorf("invalid invitation id"))
	}

	var req RetryInvitationRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	var params *service.RetryParams
	if req.TemplateName != "" || req.Variables != nil {
		params = &service.RetryParams{
			TemplateName: req.TemplateName,
			Variables:    req.Variables,
		}
	}

	job, err := h.invitations.Retry(c.Request().Context(), id, params)
	if err != nil {
		if errors.Is(err, service.ErrInvitationNotFound) {
			return response.NotFound(c, "invitation not found")
		}
		if errors.Is(err, service.ErrInvitationNotFailed) {
			return response.BadRequestWithMessage(c, "only failed invitations can be retried")
		}
		if errors.Is(err, service.ErrTemplateNotFound) {
			return response.BadRequestWithMessage(c, "template not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Invitation re-queued", map[string]any{
		"jobId": job.ID,
	})
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	// Page
	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	// Page size
	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
