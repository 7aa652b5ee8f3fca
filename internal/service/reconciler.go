package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/provider"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

// StatusCallback is one parsed provider status callback.
type StatusCallback struct {
	MessageID string
	Status    string
	ErrorCode string
}

// providerStatusVocabulary maps the gateway's callback vocabulary onto the
// internal invitation status set.
var providerStatusVocabulary = map[string]domain.ProviderStatus{
	"queued":      domain.ProviderStatusPending,
	"accepted":    domain.ProviderStatusPending,
	"pending":     domain.ProviderStatusPending,
	"sent":        domain.ProviderStatusSent,
	"delivered":   domain.ProviderStatusDelivered,
	"read":        domain.ProviderStatusRead,
	"failed":      domain.ProviderStatusFailed,
	"undelivered": domain.ProviderStatusFailed,
}

// MapProviderStatus translates a callback status string, reporting whether
// the vocabulary knows it.
func MapProviderStatus(status string) (domain.ProviderStatus, bool) {
	mapped, ok := providerStatusVocabulary[status]
	return mapped, ok
}

type reconcilerRepository interface {
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.Invitation, error)
	GetVariablesJSON(ctx context.Context, id int64) (string, error)
	ApplyStatusTransition(ctx context.Context, id int64, from, to domain.ProviderStatus, at time.Time) (bool, error)
	ApplyFailure(ctx context.Context, id int64, from domain.ProviderStatus, errorCode, errorMessage string, at time.Time) (bool, error)
	ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time) error
}

type retryScheduler interface {
	Schedule(ctx context.Context, job *domain.Job, delay time.Duration) error
}

// Reconciler applies asynchronous provider status callbacks to invitation
// records. It owns every post-submission status transition; out-of-order
// callbacks are compared against the stored status and discarded when
// stale rather than applied. Timestamps are only stamped for the status
// actually reported, never backfilled for skipped intermediate states.
type Reconciler struct {
	repo       reconcilerRepository
	jobs       queue.JobStore
	retries    retryScheduler
	maxRetries int
	now        func() time.Time
}

func NewReconciler(
	repo reconcilerRepository,
	jobs queue.JobStore,
	retries retryScheduler,
	maxRetries int,
) *Reconciler {
	return &Reconciler{
		repo:       repo,
		jobs:       jobs,
		retries:    retries,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Process applies one callback. Unknown message ids and unknown status
// strings are acknowledged without any record mutation.
func (r *Reconciler) Process(ctx context.Context, callback StatusCallback) error {
	invitation, err := r.repo.GetByProviderMessageID(ctx, callback.MessageID)
	if err != nil {
		return fmt.Errorf("failed to look up invitation for callback: %w", err)
	}
	if invitation == nil {
		logger.Debugf("Ignoring callback for unknown provider message id %s", callback.MessageID)
		return nil
	}

	status, ok := MapProviderStatus(callback.Status)
	if !ok {
		logger.Warnf("Ignoring callback with unknown status %q for invitation %d", callback.Status, invitation.ID)
		return nil
	}

	if status == domain.ProviderStatusFailed {
		return r.applyFailure(ctx, invitation, callback)
	}

	if !status.Supersedes(invitation.ProviderStatus) {
		logger.Debugf("Discarding stale %s callback for invitation %d (current: %s)",
			status, invitation.ID, invitation.ProviderStatus)
		return nil
	}

	applied, err := r.repo.ApplyStatusTransition(ctx, invitation.ID, invitation.ProviderStatus, status, r.now())
	if err != nil {
		return fmt.Errorf("failed to apply %s to invitation %d: %w", status, invitation.ID, err)
	}
	if !applied {
		// A concurrent callback moved the row first; its ordering check
		// already decided the winner.
		logger.Debugf("Status %s for invitation %d lost a concurrent update", status, invitation.ID)
		return nil
	}

	logger.Infof("Invitation %d advanced to %s", invitation.ID, status)
	return nil
}

func (r *Reconciler) applyFailure(ctx context.Context, invitation *domain.Invitation, callback StatusCallback) error {
	if !domain.ProviderStatusFailed.Supersedes(invitation.ProviderStatus) {
		logger.Debugf("Discarding failed callback for invitation %d (current: %s)",
			invitation.ID, invitation.ProviderStatus)
		return nil
	}

	classification := provider.Classify(callback.ErrorCode)
	now := r.now()

	applied, err := r.repo.ApplyFailure(ctx, invitation.ID, invitation.ProviderStatus,
		callback.ErrorCode, classification.UserMessage, now)
	if err != nil {
		return fmt.Errorf("failed to record failure for invitation %d: %w", invitation.ID, err)
	}
	if !applied {
		logger.Debugf("Failure callback for invitation %d lost a concurrent update", invitation.ID)
		return nil
	}

	logger.Warnf("Invitation %d reported %s by provider (code %s, %s)",
		invitation.ID, callback.Status, callback.ErrorCode, classification.Category)

	if !classification.Retryable || invitation.RetryCount >= invitation.MaxRetries {
		return nil
	}

	retryCount := invitation.RetryCount + 1
	delay := classification.Backoff.Delay(retryCount, now)

	if err := r.repo.ScheduleRetry(ctx, invitation.ID, retryCount, now.Add(delay)); err != nil {
		return fmt.Errorf("failed to record retry schedule for invitation %d: %w", invitation.ID, err)
	}

	job, err := r.buildRetryJob(ctx, invitation)
	if err != nil {
		return err
	}

	if err := r.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save retry job for invitation %d: %w", invitation.ID, err)
	}

	if err := r.retries.Schedule(ctx, job, delay); err != nil {
		return fmt.Errorf("failed to schedule retry job for invitation %d: %w", invitation.ID, err)
	}

	logger.Infof("Invitation %d scheduled for retry %d/%d in %v",
		invitation.ID, retryCount, invitation.MaxRetries, delay)
	return nil
}

// buildRetryJob turns the invitation's stored payload back into a dispatch
// job waiting on its due-marker.
func (r *Reconciler) buildRetryJob(ctx context.Context, invitation *domain.Invitation) (*domain.Job, error) {
	var variables map[string]string

	variablesJSON, err := r.repo.GetVariablesJSON(ctx, invitation.ID)
	if err != nil {
		return nil, err
	}
	if variablesJSON != "" {
		if err := json.Unmarshal([]byte(variablesJSON), &variables); err != nil {
			logger.Warnf("Invitation %d has unreadable stored variables, retrying without: %v", invitation.ID, err)
		}
	}

	now := r.now()
	return &domain.Job{
		ID:   uuid.NewString(),
		Type: domain.JobTypeWhatsAppSend,
		// The invitation row does not record the originating job's
		// priority, so webhook-driven retries enter at normal.
		Priority: domain.PriorityNormal,
		Payload: domain.JobPayload{
			EventID:      invitation.EventID,
			GuestID:      invitation.GuestID,
			Recipient:    invitation.Recipient,
			TemplateName: invitation.TemplateName,
			Variables:    variables,
		},
		Status:     domain.JobStatusRetrying,
		MaxRetries: r.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
