package provider

import "time"

// Category buckets provider error codes for retry policy and observability.
type Category string

const (
	CategoryRecipient Category = "recipient"
	CategoryTemplate  Category = "template"
	CategoryRateLimit Category = "rate_limit"
	CategoryQuota     Category = "quota"
	CategoryTransient Category = "transient"
	CategoryUnknown   Category = "unknown"
)

// Synthetic codes for failures that never reach the provider's error
// vocabulary (transport-level problems in our own client).
const (
	CodeTimeout = "timeout"
	CodeNetwork = "network"
)

type backoffKind int

const (
	backoffExponential backoffKind = iota
	backoffNextUTCDay
)

// BackoffPolicy computes retry delays. Exponential policies double the
// base per attempt up to Cap; the quota policy waits for the next UTC day.
type BackoffPolicy struct {
	kind backoffKind
	Base time.Duration
	Cap  time.Duration
}

func exponential(base, cap time.Duration) BackoffPolicy {
	return BackoffPolicy{kind: backoffExponential, Base: base, Cap: cap}
}

func nextUTCDay() BackoffPolicy {
	return BackoffPolicy{kind: backoffNextUTCDay}
}

// Delay returns the backoff before attempt n+1, given n completed attempts.
func (p BackoffPolicy) Delay(attempts int, now time.Time) time.Duration {
	if p.kind == backoffNextUTCDay {
		midnight := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		return midnight.Sub(now.UTC())
	}

	if attempts < 1 {
		attempts = 1
	}

	// 2^(attempts-1) overflows long before this; anything past 32
	// doublings is over every cap we use.
	if attempts-1 >= 32 {
		return p.Cap
	}

	delay := p.Base << uint(attempts-1)
	if delay > p.Cap || delay < p.Base {
		delay = p.Cap
	}

	return delay
}

// Classification is the single source of truth for how a provider error
// code is handled. The dispatcher must consult it and never inspect raw
// error text.
type Classification struct {
	Category    Category
	Retryable   bool
	Backoff     BackoffPolicy
	UserMessage string
}

var (
	recipientClassification = Classification{
		Category:    CategoryRecipient,
		Retryable:   false,
		UserMessage: "The recipient's phone number cannot receive WhatsApp messages",
	}
	templateClassification = Classification{
		Category:    CategoryTemplate,
		Retryable:   false,
		UserMessage: "The message template is missing, unapproved or does not match its parameters",
	}
	rateLimitClassification = Classification{
		Category:    CategoryRateLimit,
		Retryable:   true,
		Backoff:     exponential(5*time.Second, 5*time.Minute),
		UserMessage: "Sending is temporarily rate limited, the invitation will be retried",
	}
	quotaClassification = Classification{
		Category:    CategoryQuota,
		Retryable:   true,
		Backoff:     nextUTCDay(),
		UserMessage: "The daily messaging quota is exhausted, the invitation will be retried tomorrow",
	}
	transientClassification = Classification{
		Category:    CategoryTransient,
		Retryable:   true,
		Backoff:     exponential(30*time.Second, 10*time.Minute),
		UserMessage: "The messaging service is temporarily unavailable, the invitation will be retried",
	}
	unknownClassification = Classification{
		Category:    CategoryUnknown,
		Retryable:   true,
		Backoff:     exponential(time.Minute, time.Hour),
		UserMessage: "The invitation could not be sent, it will be retried",
	}
)

// classifications maps gateway error codes onto policies. Codes follow the
// WhatsApp Business gateway vocabulary.
var classifications = map[string]Classification{
	// Recipient problems: invalid, not on WhatsApp, or has blocked us.
	"131021": recipientClassification,
	"131026": recipientClassification,
	"131031": recipientClassification,

	// Template problems: unknown name, pending approval, parameter mismatch.
	"132000": templateClassification,
	"132001": templateClassification,
	"132012": templateClassification,
	"132015": templateClassification,

	// Per-message / per-account rate limits.
	"80007":  rateLimitClassification,
	"130429": rateLimitClassification,
	"131048": rateLimitClassification,
	"131056": rateLimitClassification,

	// Daily messaging limit reached.
	"131049": quotaClassification,

	// Provider-side outages and our own transport failures.
	"131016":   transientClassification,
	CodeTimeout: transientClassification,
	CodeNetwork: transientClassification,
}

// Classify maps a provider error code to its handling policy. Unrecognized
// codes fall back to the retryable default policy.
func Classify(code string) Classification {
	if c, ok := classifications[code]; ok {
		return c
	}
	return unknownClassification
}
