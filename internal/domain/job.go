package domain

import "time"

type JobType string

const (
	JobTypeWhatsAppSend JobType = "whatsapp_send"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Priorities lists all priorities in dequeue order.
var Priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// JobPayload carries everything a send handler needs to deliver one
// invitation to one recipient.
type JobPayload struct {
	EventID      int64             `json:"eventId"`
	GuestID      int64             `json:"guestId"`
	Recipient    string            `json:"recipient"`
	TemplateName string            `json:"templateName"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// Job is one unit of dispatch work. Records live in the job store under a
// bounded TTL, so a Job referenced from a queue may already be gone.
type Job struct {
	ID         string     `json:"id"`
	Type       JobType    `json:"jobType"`
	Priority   Priority   `json:"priority"`
	Payload    JobPayload `json:"payload"`
	Status     JobStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`

	// Version guards concurrent read-modify-write cycles on the record.
	// Every successful store update increments it; writers carrying a
	// stale version are rejected.
	Version int64 `json:"version"`

	Error  string `json:"error,omitempty"`
	Result string `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
}

// RetryBudgetLeft reports whether another attempt may be scheduled.
func (j *Job) RetryBudgetLeft() bool {
	return j.Attempts < j.MaxRetries
}
