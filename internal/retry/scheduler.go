package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

// MarkerStore holds due-time markers for scheduled retries, one sorted set
// per job type, scored by due time.
type MarkerStore interface {
	Add(ctx context.Context, key, member string, due time.Time) error
	Due(ctx context.Context, key string, now time.Time, limit int) ([]string, error)
	Remove(ctx context.Context, key, member string) error
}

const sweepBatchSize = 100

// Scheduler persists retry due-markers and sweeps them back onto the
// priority queue once due. The sweep only touches markers and the final
// re-enqueue, so it can run concurrently with dispatch.
type Scheduler struct {
	markers  MarkerStore
	jobs     queue.JobStore
	queue    *queue.PriorityQueue
	jobTypes []domain.JobType
	now      func() time.Time
}

func NewScheduler(
	markers MarkerStore,
	jobs queue.JobStore,
	pq *queue.PriorityQueue,
	jobTypes []domain.JobType,
) *Scheduler {
	return &Scheduler{
		markers:  markers,
		jobs:     jobs,
		queue:    pq,
		jobTypes: jobTypes,
		now:      time.Now,
	}
}

func markerKey(jobType domain.JobType) string {
	return fmt.Sprintf("retries:%s", jobType)
}

// Schedule records a due-marker for job at now+delay.
func (s *Scheduler) Schedule(ctx context.Context, job *domain.Job, delay time.Duration) error {
	due := s.now().Add(delay)

	if err := s.markers.Add(ctx, markerKey(job.Type), job.ID, due); err != nil {
		return fmt.Errorf("failed to persist retry marker: %w", err)
	}

	logger.Infof("Scheduled retry for job %s in %v (attempt %d/%d)", job.ID, delay, job.Attempts, job.MaxRetries)
	return nil
}

// ProcessDue re-enqueues every job whose marker is due and deletes the
// marker. Markers not yet due are left untouched. Returns the number of
// jobs re-enqueued.
func (s *Scheduler) ProcessDue(ctx context.Context) (int, error) {
	count := 0

	for _, jobType := range s.jobTypes {
		key := markerKey(jobType)

		ids, err := s.markers.Due(ctx, key, s.now(), sweepBatchSize)
		if err != nil {
			return count, fmt.Errorf("failed to scan due retries: %w", err)
		}

		for _, id := range ids {
			if s.requeue(ctx, key, id) {
				count++
			}
		}
	}

	return count, nil
}

func (s *Scheduler) requeue(ctx context.Context, key, id string) bool {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			logger.Warnf("Dropping retry marker for expired job %s", id)
			if err := s.markers.Remove(ctx, key, id); err != nil {
				logger.Errorf("Failed to remove stale retry marker for job %s: %v", id, err)
			}
			return false
		}

		logger.Errorf("Failed to load job %s for retry: %v", id, err)
		return false
	}

	job.Status = domain.JobStatusPending
	job.UpdatedAt = s.now()

	if err := s.jobs.Update(ctx, job); err != nil {
		if errors.Is(err, queue.ErrVersionConflict) {
			// A concurrent writer owns this record right now; the marker
			// stays put and the next sweep tries again.
			logger.Warnf("Skipping retry of job %s: concurrent update in flight", id)
			return false
		}

		logger.Errorf("Failed to reset job %s to pending: %v", id, err)
		return false
	}

	if err := s.queue.Requeue(ctx, job); err != nil {
		logger.Errorf("Failed to re-enqueue job %s: %v", id, err)
		return false
	}

	if err := s.markers.Remove(ctx, key, id); err != nil {
		logger.Errorf("Failed to remove retry marker for job %s: %v", id, err)
	}

	return true
}
