package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/provider"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

var (
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationNotFailed = errors.New("invitation is not in failed status")
)

// Provider error codes raised by the adapter itself when the template
// cannot be used; both classify as terminal template errors.
const (
	codeTemplateMissing    = "132001"
	codeTemplateUnapproved = "132015"
)

type invitationRepository interface {
	Upsert(
		ctx context.Context,
		eventID, guestID int64,
		recipient, templateName, renderedContent, variablesJSON string,
		maxRetries int,
	) (*domain.Invitation, error)
	GetByID(ctx context.Context, id int64) (*domain.Invitation, error)
	GetVariablesJSON(ctx context.Context, id int64) (string, error)
	MarkSubmitted(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) error
	MarkSendFailed(ctx context.Context, id int64, errorCode, errorMessage string, failedAt time.Time) error
	ClearRetrySchedule(ctx context.Context, id int64) error
	GetAll(ctx context.Context, status *domain.ProviderStatus, page, pageSize int) ([]domain.Invitation, int64, error)
	GetStats(ctx context.Context) (map[domain.ProviderStatus]int64, error)
}

type providerClient interface {
	SendMessage(ctx context.Context, to, content string) (string, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, params EnqueueParams) (*domain.Job, error)
}

// InvitationService is the send adapter: it renders the template, submits
// the message to the provider and keeps the invitation audit record in
// sync with the outcome. It also serves the invitation-facing API
// operations (list, stats, manual retry).
type InvitationService struct {
	repo       invitationRepository
	templates  templateReader
	client     providerClient
	enqueuer   jobEnqueuer
	maxRetries int
	now        func() time.Time
}

func NewInvitationService(
	repo invitationRepository,
	templates templateReader,
	client providerClient,
	enqueuer jobEnqueuer,
	maxRetries int,
) *InvitationService {
	return &InvitationService{
		repo:       repo,
		templates:  templates,
		client:     client,
		enqueuer:   enqueuer,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Send delivers one invitation and returns the provider message id. The
// invitation record is written or updated regardless of the outcome, with
// the exact rendered content. Failures come back as *provider.Error whose
// Error() carries only the classifier's user-facing message.
func (s *InvitationService) Send(ctx context.Context, payload domain.JobPayload) (string, error) {
	template, err := s.templates.GetByName(ctx, payload.TemplateName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve template %q: %w", payload.TemplateName, err)
	}

	if template == nil {
		return "", s.recordTemplateFailure(ctx, payload,
			provider.NewError(codeTemplateMissing, fmt.Sprintf("template %q does not exist", payload.TemplateName)))
	}
	if !template.Approved {
		return "", s.recordTemplateFailure(ctx, payload,
			provider.NewError(codeTemplateUnapproved, fmt.Sprintf("template %q is not approved", payload.TemplateName)))
	}

	content := RenderTemplate(template.Body, payload.Variables)

	invitation, err := s.upsert(ctx, payload, content)
	if err != nil {
		return "", err
	}

	messageID, err := s.client.SendMessage(ctx, payload.Recipient, content)
	if err != nil {
		var providerErr *provider.Error
		if errors.As(err, &providerErr) {
			logger.Errorf("Provider rejected invitation %d (code %s): %s",
				invitation.ID, providerErr.Code, providerErr.ProviderMessage)

			if markErr := s.repo.MarkSendFailed(ctx, invitation.ID,
				providerErr.Code, providerErr.ProviderMessage, s.now()); markErr != nil {
				logger.Errorf("Failed to record send failure for invitation %d: %v", invitation.ID, markErr)
			}
			return "", providerErr
		}

		return "", fmt.Errorf("failed to submit invitation %d: %w", invitation.ID, err)
	}

	if err := s.repo.MarkSubmitted(ctx, invitation.ID, messageID, s.now()); err != nil {
		return "", fmt.Errorf("failed to record submission of invitation %d: %w", invitation.ID, err)
	}

	logger.Infof("Invitation %d submitted (providerMessageId: %s)", invitation.ID, messageID)
	return messageID, nil
}

func (s *InvitationService) upsert(ctx context.Context, payload domain.JobPayload, content string) (*domain.Invitation, error) {
	variablesJSON := "{}"
	if len(payload.Variables) > 0 {
		data, err := json.Marshal(payload.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to encode variables: %w", err)
		}
		variablesJSON = string(data)
	}

	invitation, err := s.repo.Upsert(ctx,
		payload.EventID, payload.GuestID,
		payload.Recipient, payload.TemplateName, content, variablesJSON,
		s.maxRetries)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, fmt.Errorf("invitation for event %d guest %d missing after upsert", payload.EventID, payload.GuestID)
	}

	return invitation, nil
}

// recordTemplateFailure keeps an audit row even when rendering never
// happened; the rendered content is left empty.
func (s *InvitationService) recordTemplateFailure(ctx context.Context, payload domain.JobPayload, cause *provider.Error) error {
	invitation, err := s.upsert(ctx, payload, "")
	if err != nil {
		logger.Errorf("Failed to record template failure for event %d guest %d: %v",
			payload.EventID, payload.GuestID, err)
		return cause
	}

	if err := s.repo.MarkSendFailed(ctx, invitation.ID, cause.Code, cause.ProviderMessage, s.now()); err != nil {
		logger.Errorf("Failed to record template failure for invitation %d: %v", invitation.ID, err)
	}

	return cause
}

// RetryParams optionally overrides template and variables for a manual
// re-submission.
type RetryParams struct {
	TemplateName string
	Variables    map[string]string
}

// Retry re-queues a terminally failed invitation as a fresh dispatch job.
// Any provider status other than failed is rejected.
func (s *InvitationService) Retry(ctx context.Context, id int64, params *RetryParams) (*domain.Job, error) {
	invitation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, ErrInvitationNotFound
	}

	if invitation.ProviderStatus != domain.ProviderStatusFailed {
		return nil, ErrInvitationNotFailed
	}

	templateName := invitation.TemplateName
	var variables map[string]string

	if params != nil && params.TemplateName != "" {
		templateName = params.TemplateName
	}

	if params != nil && params.Variables != nil {
		variables = params.Variables
	} else {
		variablesJSON, err := s.repo.GetVariablesJSON(ctx, id)
		if err != nil {
			return nil, err
		}
		if variablesJSON != "" {
			if err := json.Unmarshal([]byte(variablesJSON), &variables); err != nil {
				logger.Warnf("Invitation %d has unreadable stored variables, retrying without: %v", id, err)
			}
		}
	}

	job, err := s.enqueuer.Enqueue(ctx, EnqueueParams{
		Priority: domain.PriorityHigh,
		Payload: domain.JobPayload{
			EventID:      invitation.EventID,
			GuestID:      invitation.GuestID,
			Recipient:    invitation.Recipient,
			TemplateName: templateName,
			Variables:    variables,
		},
	})
	if err != nil {
		return nil, err
	}

	// Manual retries supersede any automatic schedule still on the row.
	if err := s.repo.ClearRetrySchedule(ctx, id); err != nil {
		logger.Warnf("Failed to clear retry schedule for invitation %d: %v", id, err)
	}

	logger.Infof("Invitation %d re-queued as job %s", id, job.ID)
	return job, nil
}

func (s *InvitationService) GetAllInvitations(
	ctx context.Context,
	status *domain.ProviderStatus,
	page, pageSize int,
) ([]domain.Invitation, int64, error) {
	return s.repo.GetAll(ctx, status, page, pageSize)
}

func (s *InvitationService) GetStats(ctx context.Context) (map[domain.ProviderStatus]int64, error) {
	return s.repo.GetStats(ctx)
}
