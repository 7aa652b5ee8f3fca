package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
)

func newTestQueue() (*PriorityQueue, *MemoryJobStore) {
	jobs := NewMemoryJobStore(time.Hour)
	return NewPriorityQueue(NewMemoryListStore(), jobs), jobs
}

func makeJob(id string, priority domain.Priority) *domain.Job {
	now := time.Now()
	return &domain.Job{
		ID:         id,
		Type:       domain.JobTypeWhatsAppSend,
		Priority:   priority,
		Status:     domain.JobStatusPending,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestDequeueHonorsPriorityOrder(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	// Enqueued out of priority order on purpose.
	for _, job := range []*domain.Job{
		makeJob("low-1", domain.PriorityLow),
		makeJob("normal-1", domain.PriorityNormal),
		makeJob("high-1", domain.PriorityHigh),
		makeJob("high-2", domain.PriorityHigh),
	} {
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue %s: %v", job.ID, err)
		}
	}

	want := []string{"high-1", "high-2", "normal-1", "low-1"}
	for _, id := range want {
		job, err := q.Dequeue(ctx, domain.JobTypeWhatsAppSend)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if job == nil {
			t.Fatalf("expected job %s, queue came up empty", id)
		}
		if job.ID != id {
			t.Fatalf("dequeued %s, want %s", job.ID, id)
		}
	}

	job, err := q.Dequeue(ctx, domain.JobTypeWhatsAppSend)
	if err != nil {
		t.Fatalf("dequeue on empty: %v", err)
	}
	if job != nil {
		t.Fatalf("expected empty queue, got %s", job.ID)
	}
}

func TestDequeueDropsExpiredReferences(t *testing.T) {
	jobs := NewMemoryJobStore(time.Hour)
	current := time.Now()
	jobs.now = func() time.Time { return current }

	q := NewPriorityQueue(NewMemoryListStore(), jobs)
	ctx := context.Background()

	expired := makeJob("expired", domain.PriorityHigh)
	live := makeJob("live", domain.PriorityHigh)

	if err := q.Enqueue(ctx, expired); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// The first record ages past its TTL before the second is written.
	current = current.Add(2 * time.Hour)
	if err := q.Enqueue(ctx, live); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := q.Dequeue(ctx, domain.JobTypeWhatsAppSend)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil || job.ID != "live" {
		t.Fatalf("expected the live job, got %+v", job)
	}
}

func TestJobStoreUpdateDetectsConcurrentWriter(t *testing.T) {
	_, jobs := newTestQueue()
	ctx := context.Background()

	job := makeJob("contended", domain.PriorityNormal)
	if err := jobs.Save(ctx, job); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Two workers read the same version.
	first, _ := jobs.Get(ctx, job.ID)
	second, _ := jobs.Get(ctx, job.ID)

	first.Status = domain.JobStatusProcessing
	if err := jobs.Update(ctx, first); err != nil {
		t.Fatalf("first update must win: %v", err)
	}

	second.Status = domain.JobStatusProcessing
	if err := jobs.Update(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("second update: got %v, want ErrVersionConflict", err)
	}
}

func TestJobStoreUpdateOnExpiredRecord(t *testing.T) {
	jobs := NewMemoryJobStore(time.Hour)
	current := time.Now()
	jobs.now = func() time.Time { return current }
	ctx := context.Background()

	job := makeJob("gone", domain.PriorityNormal)
	if err := jobs.Save(ctx, job); err != nil {
		t.Fatalf("save: %v", err)
	}

	current = current.Add(2 * time.Hour)

	if err := jobs.Update(ctx, job); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update after expiry: got %v, want ErrNotFound", err)
	}
}
