package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

var (
	// ErrNotFound means the job record is gone, usually because its TTL
	// expired before a queued reference was consumed.
	ErrNotFound = errors.New("job not found")

	// ErrVersionConflict means a concurrent writer updated the job record
	// between our read and write.
	ErrVersionConflict = errors.New("job version conflict")
)

// JobStore is the TTL-bounded keyed record of job state. Update is a
// conditional write: it only succeeds if the stored version still matches
// the version the caller read, and bumps the version on success.
type JobStore interface {
	Save(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
}

// ListStore backs the priority lists. Push appends to the tail, Pop is an
// atomic remove-and-return from the head so concurrent workers never
// receive the same reference.
type ListStore interface {
	Push(ctx context.Context, key, value string) error
	Pop(ctx context.Context, key string) (string, bool, error)
}

// PriorityQueue holds job references in one list per (jobType, priority)
// and the full records in the job store.
type PriorityQueue struct {
	lists ListStore
	jobs  JobStore
}

func NewPriorityQueue(lists ListStore, jobs JobStore) *PriorityQueue {
	return &PriorityQueue{
		lists: lists,
		jobs:  jobs,
	}
}

func listKey(jobType domain.JobType, priority domain.Priority) string {
	return fmt.Sprintf("queue:%s:%s", jobType, priority)
}

// Enqueue persists the full job record and appends its reference to the
// tail of the matching priority list.
func (q *PriorityQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	if err := q.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job record: %w", err)
	}

	if err := q.lists.Push(ctx, listKey(job.Type, job.Priority), job.ID); err != nil {
		return fmt.Errorf("failed to push job reference: %w", err)
	}

	return nil
}

// Requeue appends the job reference back to the tail of its own priority
// list without rewriting the record. Used when a dequeued job could not be
// processed yet (rate limited) and when a due retry re-enters the queue.
func (q *PriorityQueue) Requeue(ctx context.Context, job *domain.Job) error {
	if err := q.lists.Push(ctx, listKey(job.Type, job.Priority), job.ID); err != nil {
		return fmt.Errorf("failed to requeue job reference: %w", err)
	}
	return nil
}

// Dequeue pops the next reference, high before normal before low, and
// resolves it to the full record. References whose record has expired are
// logged and dropped, and the pop moves on to the next candidate. Returns
// (nil, nil) when every list is empty.
func (q *PriorityQueue) Dequeue(ctx context.Context, jobType domain.JobType) (*domain.Job, error) {
	for _, priority := range domain.Priorities {
		key := listKey(jobType, priority)

		for {
			id, ok, err := q.lists.Pop(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to pop from %s: %w", key, err)
			}
			if !ok {
				break
			}

			job, err := q.jobs.Get(ctx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					logger.Warnf("Dropping queued reference to expired job %s (%s)", id, key)
					continue
				}
				return nil, fmt.Errorf("failed to load job %s: %w", id, err)
			}

			return job, nil
		}
	}

	return nil, nil
}
