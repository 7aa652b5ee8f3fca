package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/provider"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

// Handler performs one delivery attempt for a job and returns the
// provider message id on success.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *domain.Job) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job) (string, error) {
	return f(ctx, job)
}

// Small consumer-side interfaces so the processor can be tested with fakes.
type rateLimiter interface {
	Allow(ctx context.Context, jobType domain.JobType) (bool, error)
}

type retryScheduler interface {
	Schedule(ctx context.Context, job *domain.Job, delay time.Duration) error
}

// Processor pops jobs, enforces the rate limit, invokes the registered
// handler and owns every job state transition. Retryability is decided
// solely by the classification attached to the handler's error, never by
// inspecting error text.
type Processor struct {
	queue    *queue.PriorityQueue
	jobs     queue.JobStore
	limiter  rateLimiter
	retries  retryScheduler
	handlers map[domain.JobType]Handler
	jobTypes []domain.JobType
	now      func() time.Time
}

func NewProcessor(
	pq *queue.PriorityQueue,
	jobs queue.JobStore,
	limiter rateLimiter,
	retries retryScheduler,
) *Processor {
	return &Processor{
		queue:    pq,
		jobs:     jobs,
		limiter:  limiter,
		retries:  retries,
		handlers: make(map[domain.JobType]Handler),
		now:      time.Now,
	}
}

// Register binds a handler to a job type. New job types are added here,
// not by branching on strings inside the processor.
func (p *Processor) Register(jobType domain.JobType, handler Handler) {
	if _, exists := p.handlers[jobType]; !exists {
		p.jobTypes = append(p.jobTypes, jobType)
	}
	p.handlers[jobType] = handler
}

// JobTypes returns the registered job types in registration order.
func (p *Processor) JobTypes() []domain.JobType {
	return p.jobTypes
}

// ProcessQueue handles at most one job. It returns (nil, nil) when the
// queues are empty or the next job is rate limited; a rate-limited job is
// pushed back to the tail of its own priority list without being sent.
func (p *Processor) ProcessQueue(ctx context.Context) (*domain.Job, error) {
	for _, jobType := range p.jobTypes {
		job, err := p.queue.Dequeue(ctx, jobType)
		if err != nil {
			return nil, err
		}
		if job == nil {
			continue
		}

		allowed, err := p.limiter.Allow(ctx, job.Type)
		if err != nil {
			if requeueErr := p.queue.Requeue(ctx, job); requeueErr != nil {
				logger.Errorf("Failed to requeue job %s after rate limit error: %v", job.ID, requeueErr)
			}
			return nil, fmt.Errorf("rate limit check failed: %w", err)
		}

		if !allowed {
			logger.Debugf("Job %s rate limited, requeueing", job.ID)
			if err := p.queue.Requeue(ctx, job); err != nil {
				return nil, fmt.Errorf("failed to requeue rate-limited job %s: %w", job.ID, err)
			}
			return nil, nil
		}

		return p.process(ctx, job)
	}

	return nil, nil
}

func (p *Processor) process(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %s", job.Type)
	}

	now := p.now()
	job.Status = domain.JobStatusProcessing
	job.ProcessedAt = &now
	job.UpdatedAt = now

	if err := p.jobs.Update(ctx, job); err != nil {
		if errors.Is(err, queue.ErrVersionConflict) {
			// Another worker holds a newer version of this record; it owns
			// the job now.
			logger.Warnf("Job %s claimed by a concurrent worker, skipping", job.ID)
			return nil, nil
		}
		if errors.Is(err, queue.ErrNotFound) {
			logger.Warnf("Job %s expired before processing, dropping", job.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark job %s processing: %w", job.ID, err)
	}

	result, err := p.invoke(ctx, handler, job)
	if err == nil {
		return p.complete(ctx, job, result)
	}

	return p.fail(ctx, job, err)
}

// invoke runs the handler, converting panics into ordinary errors so a
// crashing handler consumes retry budget like any other failure.
func (p *Processor) invoke(ctx context.Context, handler Handler, job *domain.Job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Handle(ctx, job)
}

func (p *Processor) complete(ctx context.Context, job *domain.Job, result string) (*domain.Job, error) {
	now := p.now()
	job.Status = domain.JobStatusCompleted
	job.Result = result
	job.Error = ""
	job.CompletedAt = &now
	job.UpdatedAt = now

	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job %s completed: %w", job.ID, err)
	}

	logger.Infof("Job %s completed (result: %s)", job.ID, result)
	return job, nil
}

func (p *Processor) fail(ctx context.Context, job *domain.Job, cause error) (*domain.Job, error) {
	classification := classificationFor(cause)
	now := p.now()

	budget := job.RetryBudgetLeft()
	if budget {
		job.Attempts++
	}

	job.Error = cause.Error()
	job.UpdatedAt = now

	if classification.Retryable && budget {
		job.Status = domain.JobStatusRetrying

		if err := p.jobs.Update(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to mark job %s retrying: %w", job.ID, err)
		}

		delay := classification.Backoff.Delay(job.Attempts, now)
		if err := p.retries.Schedule(ctx, job, delay); err != nil {
			return nil, fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
		}

		logger.Warnf("Job %s failed (attempt %d/%d, %s), retry in %v: %v",
			job.ID, job.Attempts, job.MaxRetries, classification.Category, delay, cause)
		return job, nil
	}

	job.Status = domain.JobStatusFailed
	job.FailedAt = &now

	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}

	logger.Errorf("Job %s failed terminally after %d attempts (%s): %v",
		job.ID, job.Attempts, classification.Category, cause)
	return job, nil
}

// classificationFor extracts the retry policy carried by a provider error.
// Timeouts count as transient; anything unclassified gets the default
// retryable policy, matching how unknown provider codes are handled.
func classificationFor(err error) provider.Classification {
	var providerErr *provider.Error
	if errors.As(err, &providerErr) {
		return providerErr.Classification
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.Classify(provider.CodeTimeout)
	}

	return provider.Classify("")
}
