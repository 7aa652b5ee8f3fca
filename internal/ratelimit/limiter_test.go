package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
)

func newTestLimiter(rule Rule) (*Limiter, *time.Time) {
	current := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	store := NewMemoryCounterStore()
	store.now = func() time.Time { return current }

	limiter := NewLimiter(store, map[domain.JobType]Rule{
		domain.JobTypeWhatsAppSend: rule,
	})
	limiter.now = store.now

	return limiter, &current
}

func TestAllowOnePerSecond(t *testing.T) {
	limiter, now := newTestLimiter(Rule{Window: time.Second, MaxPerWindow: 1})
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, domain.JobTypeWhatsAppSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("first call in the window must be allowed")
	}

	allowed, err = limiter.Allow(ctx, domain.JobTypeWhatsAppSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("second call in the same window must be denied")
	}

	// Next window.
	*now = now.Add(time.Second)

	allowed, err = limiter.Allow(ctx, domain.JobTypeWhatsAppSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("call in the next window must be allowed again")
	}
}

func TestAllowLargerWindow(t *testing.T) {
	limiter, _ := newTestLimiter(Rule{Window: time.Minute, MaxPerWindow: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, domain.JobTypeWhatsAppSend)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("call %d within the limit must be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, domain.JobTypeWhatsAppSend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("fourth call must exceed the per-minute limit")
	}
}

func TestUnconfiguredJobTypeGetsDefaultRule(t *testing.T) {
	limiter := NewLimiter(NewMemoryCounterStore(), nil)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, domain.JobType("other"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("first call under the default rule must be allowed")
	}

	allowed, _ = limiter.Allow(ctx, domain.JobType("other"))
	if allowed {
		t.Fatal("default rule is one per second, second call must be denied")
	}
}
