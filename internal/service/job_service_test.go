package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
)

type fakeGuests struct {
	guests []domain.Guest
}

func (f *fakeGuests) GetByIDs(ctx context.Context, eventID int64, ids []int64) ([]domain.Guest, error) {
	return f.guests, nil
}

func newTestJobService(guests []domain.Guest) (*JobService, *queue.PriorityQueue) {
	jobs := queue.NewMemoryJobStore(time.Hour)
	pq := queue.NewPriorityQueue(queue.NewMemoryListStore(), jobs)
	svc := NewJobService(pq, jobs, approvedTemplates(), &fakeGuests{guests: guests}, 3)
	return svc, pq
}

func TestEnqueueDefaultsAndPersists(t *testing.T) {
	svc, pq := newTestJobService(nil)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, EnqueueParams{Payload: sendPayload()})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if job.ID == "" {
		t.Error("job id not assigned")
	}
	if job.Type != domain.JobTypeWhatsAppSend {
		t.Errorf("type = %s, want the whatsapp_send default", job.Type)
	}
	if job.Priority != domain.PriorityNormal {
		t.Errorf("priority = %s, want the normal default", job.Priority)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.MaxRetries != 3 {
		t.Errorf("maxRetries = %d, want the configured default", job.MaxRetries)
	}

	dequeued, err := pq.Dequeue(ctx, domain.JobTypeWhatsAppSend)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if dequeued == nil || dequeued.ID != job.ID {
		t.Fatalf("enqueued job not on the queue: %+v", dequeued)
	}

	fetched, err := svc.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched.ID != job.ID {
		t.Errorf("GetJob returned %s, want %s", fetched.ID, job.ID)
	}
}

func TestEnqueueRejectsUnknownTemplate(t *testing.T) {
	svc, _ := newTestJobService(nil)

	payload := sendPayload()
	payload.TemplateName = "no_such_template"

	if _, err := svc.Enqueue(context.Background(), EnqueueParams{Payload: payload}); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("enqueue with unknown template: got %v, want ErrTemplateNotFound", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	svc, _ := newTestJobService(nil)

	if _, err := svc.GetJob(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("get missing job: got %v, want ErrJobNotFound", err)
	}
}

func TestBulkEnqueueCreatesOneJobPerGuest(t *testing.T) {
	guests := []domain.Guest{
		{ID: 1, EventID: 10, Name: "Ada", PhoneNumber: "+14155550100"},
		{ID: 2, EventID: 10, Name: "Grace", PhoneNumber: "+14155550101"},
	}
	svc, pq := newTestJobService(guests)
	ctx := context.Background()

	jobIDs, err := svc.BulkEnqueue(ctx, 10, []int64{1, 2}, "wedding_invite",
		map[string]string{"date": "June 21"}, domain.PriorityLow)
	if err != nil {
		t.Fatalf("bulk enqueue: %v", err)
	}
	if len(jobIDs) != 2 {
		t.Fatalf("created %d jobs, want 2", len(jobIDs))
	}

	for i, guest := range guests {
		job, err := pq.Dequeue(ctx, domain.JobTypeWhatsAppSend)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if job == nil {
			t.Fatalf("job %d missing from the queue", i)
		}

		if job.Priority != domain.PriorityLow {
			t.Errorf("priority = %s, want low", job.Priority)
		}
		if job.Payload.Recipient != guest.PhoneNumber {
			t.Errorf("recipient = %s, want %s", job.Payload.Recipient, guest.PhoneNumber)
		}
		// The guest's name fills the name placeholder, shared variables
		// apply to everyone.
		if job.Payload.Variables["name"] != guest.Name {
			t.Errorf("name variable = %q, want %q", job.Payload.Variables["name"], guest.Name)
		}
		if job.Payload.Variables["date"] != "June 21" {
			t.Errorf("shared variable missing: %v", job.Payload.Variables)
		}
	}
}

func TestBulkEnqueueKeepsCallerProvidedName(t *testing.T) {
	guests := []domain.Guest{{ID: 1, EventID: 10, Name: "Ada", PhoneNumber: "+14155550100"}}
	svc, pq := newTestJobService(guests)
	ctx := context.Background()

	if _, err := svc.BulkEnqueue(ctx, 10, []int64{1}, "wedding_invite",
		map[string]string{"name": "Dr. Lovelace"}, domain.PriorityNormal); err != nil {
		t.Fatalf("bulk enqueue: %v", err)
	}

	job, _ := pq.Dequeue(ctx, domain.JobTypeWhatsAppSend)
	if job.Payload.Variables["name"] != "Dr. Lovelace" {
		t.Errorf("name variable = %q, caller's value must win", job.Payload.Variables["name"])
	}
}
