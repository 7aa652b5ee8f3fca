package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
)

// CounterStore is the backing store for fixed-window counters. Increment
// must be atomic at the store level: one round trip that increments and
// returns the new value, setting expiry on the window's first increment.
type CounterStore interface {
	Increment(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// Rule is the per-job-type window configuration.
type Rule struct {
	Window       time.Duration
	MaxPerWindow int64
}

// DefaultRule matches the gateway's strict per-second cap.
var DefaultRule = Rule{
	Window:       time.Second,
	MaxPerWindow: 1,
}

// Limiter enforces fixed-window rate limits per job type.
type Limiter struct {
	store CounterStore
	rules map[domain.JobType]Rule
	now   func() time.Time
}

func NewLimiter(store CounterStore, rules map[domain.JobType]Rule) *Limiter {
	return &Limiter{
		store: store,
		rules: rules,
		now:   time.Now,
	}
}

func (l *Limiter) rule(jobType domain.JobType) Rule {
	if r, ok := l.rules[jobType]; ok {
		return r
	}
	return DefaultRule
}

// Allow increments the current window's counter for jobType and reports
// whether this call is still within the limit.
func (l *Limiter) Allow(ctx context.Context, jobType domain.JobType) (bool, error) {
	rule := l.rule(jobType)

	window := l.now().UnixMilli() / rule.Window.Milliseconds()
	key := fmt.Sprintf("ratelimit:%s:%d", jobType, window)

	count, err := l.store.Increment(ctx, key, rule.Window)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return count <= rule.MaxPerWindow, nil
}
