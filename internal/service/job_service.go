package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrJobNotFound      = errors.New("job not found")
)

// Consumer-side interfaces: just what this service needs.
type templateReader interface {
	GetByName(ctx context.Context, name string) (*domain.Template, error)
}

type guestReader interface {
	GetByIDs(ctx context.Context, eventID int64, ids []int64) ([]domain.Guest, error)
}

// JobService creates dispatch jobs and answers job status lookups.
type JobService struct {
	queue             *queue.PriorityQueue
	jobs              queue.JobStore
	templates         templateReader
	guests            guestReader
	defaultMaxRetries int
	now               func() time.Time
}

func NewJobService(
	pq *queue.PriorityQueue,
	jobs queue.JobStore,
	templates templateReader,
	guests guestReader,
	defaultMaxRetries int,
) *JobService {
	return &JobService{
		queue:             pq,
		jobs:              jobs,
		templates:         templates,
		guests:            guests,
		defaultMaxRetries: defaultMaxRetries,
		now:               time.Now,
	}
}

// EnqueueParams describes one dispatch job to create.
type EnqueueParams struct {
	JobType  domain.JobType
	Priority domain.Priority
	Payload  domain.JobPayload
}

// Enqueue validates the payload's template, persists a pending job and
// pushes it onto its priority queue. Returns the created job.
func (s *JobService) Enqueue(ctx context.Context, params EnqueueParams) (*domain.Job, error) {
	template, err := s.templates.GetByName(ctx, params.Payload.TemplateName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template: %w", err)
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}

	jobType := params.JobType
	if jobType == "" {
		jobType = domain.JobTypeWhatsAppSend
	}

	priority := params.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	now := s.now()
	job := &domain.Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Priority:   priority,
		Payload:    params.Payload,
		Status:     domain.JobStatusPending,
		MaxRetries: s.defaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, nil
}

// GetJob returns the job record or ErrJobNotFound once the record expired.
func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// BulkEnqueue creates one job per resolved guest of the event. Shared
// variables apply to every guest; the guest's name fills the {{name}}
// placeholder unless the caller supplied one.
func (s *JobService) BulkEnqueue(
	ctx context.Context,
	eventID int64,
	guestIDs []int64,
	templateName string,
	variables map[string]string,
	priority domain.Priority,
) ([]string, error) {
	guests, err := s.guests.GetByIDs(ctx, eventID, guestIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve guests: %w", err)
	}

	jobIDs := make([]string, 0, len(guests))

	for _, guest := range guests {
		guestVars := make(map[string]string, len(variables)+1)
		for k, v := range variables {
			guestVars[k] = v
		}
		if _, ok := guestVars["name"]; !ok {
			guestVars["name"] = guest.Name
		}

		job, err := s.Enqueue(ctx, EnqueueParams{
			Priority: priority,
			Payload: domain.JobPayload{
				EventID:      eventID,
				GuestID:      guest.ID,
				Recipient:    guest.PhoneNumber,
				TemplateName: templateName,
				Variables:    guestVars,
			},
		})
		if err != nil {
			return jobIDs, err
		}

		jobIDs = append(jobIDs, job.ID)
	}

	return jobIDs, nil
}
