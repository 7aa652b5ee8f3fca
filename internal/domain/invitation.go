package domain

import "time"

// ProviderStatus is the reconciled delivery state of an invitation as
// reported by the messaging provider's status callbacks.
type ProviderStatus string

const (
	ProviderStatusPending   ProviderStatus = "pending"
	ProviderStatusSent      ProviderStatus = "sent"
	ProviderStatusDelivered ProviderStatus = "delivered"
	ProviderStatusRead      ProviderStatus = "read"
	ProviderStatusFailed    ProviderStatus = "failed"
)

// statusRank orders provider statuses so that out-of-order callbacks can
// be discarded. failed shares the terminal rank with read: a failure may
// arrive after delivery confirmation, but never supersedes a read receipt
// (and a read receipt never supersedes a recorded failure).
var statusRank = map[ProviderStatus]int{
	ProviderStatusPending:   0,
	ProviderStatusSent:      1,
	ProviderStatusDelivered: 2,
	ProviderStatusRead:      3,
	ProviderStatusFailed:    3,
}

// Supersedes reports whether status s may overwrite current.
func (s ProviderStatus) Supersedes(current ProviderStatus) bool {
	return statusRank[s] > statusRank[current]
}

func (s ProviderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Invitation is the audit record of one outbound message to one guest for
// one event. It outlives the Job that produced it: a retried job updates
// the same invitation row in place.
type Invitation struct {
	ID                int64          `db:"id" json:"id"`
	EventID           int64          `db:"event_id" json:"eventId"`
	GuestID           int64          `db:"guest_id" json:"guestId"`
	Recipient         string         `db:"recipient" json:"recipient"`
	TemplateName      string         `db:"template_name" json:"templateName"`
	RenderedContent   string         `db:"rendered_content" json:"renderedContent"`
	ProviderMessageID *string        `db:"provider_message_id" json:"providerMessageId,omitempty"`
	ProviderStatus    ProviderStatus `db:"provider_status" json:"providerStatus"`
	ErrorCode         *string        `db:"error_code" json:"errorCode,omitempty"`
	ErrorMessage      *string        `db:"error_message" json:"errorMessage,omitempty"`
	RetryCount        int            `db:"retry_count" json:"retryCount"`
	MaxRetries        int            `db:"max_retries" json:"maxRetries"`
	NextRetryAt       *time.Time     `db:"next_retry_at" json:"nextRetryAt,omitempty"`
	SentAt            *time.Time     `db:"sent_at" json:"sentAt,omitempty"`
	DeliveredAt       *time.Time     `db:"delivered_at" json:"deliveredAt,omitempty"`
	ReadAt            *time.Time     `db:"read_at" json:"readAt,omitempty"`
	FailedAt          *time.Time     `db:"failed_at" json:"failedAt,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// Template is a stored message template with {{name}} placeholders.
type Template struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Body      string    `db:"body" json:"body"`
	Language  string    `db:"language" json:"language"`
	Approved  bool      `db:"approved" json:"approved"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Guest is the minimal view of a guest row needed for bulk sends.
type Guest struct {
	ID          int64  `db:"id" json:"id"`
	EventID     int64  `db:"event_id" json:"eventId"`
	Name        string `db:"name" json:"name"`
	PhoneNumber string `db:"phone_number" json:"phoneNumber"`
}
