package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
	"github.com/invitedesk/invite-dispatch-service/internal/queue"
)

const jobKeyPrefix = "job:"

// updateJobScript is a compare-and-set on the job record's version field.
// Returns -1 when the record is gone (TTL expired), 0 on version mismatch,
// 1 on success.
const updateJobScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then
  return -1
end
local decoded = cjson.decode(cur)
local version = decoded['version'] or 0
if tonumber(version) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// JobStore keeps job records as JSON values under a bounded TTL and
// guards updates with optimistic versioning.
type JobStore struct {
	client *Client
	ttl    time.Duration
}

func NewJobStore(client *Client, ttl time.Duration) *JobStore {
	return &JobStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *JobStore) Save(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	c := s.client.client
	err = c.Do(ctx, c.B().Set().Key(jobKeyPrefix+job.ID).Value(string(data)).Px(s.ttl).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to save job record: %w", err)
	}

	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	c := s.client.client

	result := c.Do(ctx, c.B().Get().Key(jobKeyPrefix+id).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return nil, queue.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job record: %w", result.Error())
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
	}

	return &job, nil
}

func (s *JobStore) Update(ctx context.Context, job *domain.Job) error {
	expected := job.Version
	job.Version = expected + 1

	data, err := json.Marshal(job)
	if err != nil {
		job.Version = expected
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	c := s.client.client
	result := c.Do(ctx, c.B().Eval().
		Script(updateJobScript).
		Numkeys(1).
		Key(jobKeyPrefix+job.ID).
		Arg(strconv.FormatInt(expected, 10), string(data), strconv.FormatInt(s.ttl.Milliseconds(), 10)).
		Build())

	outcome, err := result.AsInt64()
	if err != nil {
		job.Version = expected
		return fmt.Errorf("failed to update job record: %w", err)
	}

	switch outcome {
	case -1:
		job.Version = expected
		return queue.ErrNotFound
	case 0:
		job.Version = expected
		return queue.ErrVersionConflict
	}

	return nil
}

// ListStore backs the priority queues. LPUSH appends to the tail, RPOP is
// the atomic head remove, so concurrent workers never pop the same
// reference.
type ListStore struct {
	client *Client
}

func NewListStore(client *Client) *ListStore {
	return &ListStore{client: client}
}

func (s *ListStore) Push(ctx context.Context, key, value string) error {
	c := s.client.client
	if err := c.Do(ctx, c.B().Lpush().Key(key).Element(value).Build()).Error(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (s *ListStore) Pop(ctx context.Context, key string) (string, bool, error) {
	c := s.client.client

	result := c.Do(ctx, c.B().Rpop().Key(key).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to pop from %s: %w", key, result.Error())
	}

	value, err := result.ToString()
	if err != nil {
		return "", false, fmt.Errorf("failed to read popped value: %w", err)
	}

	return value, true, nil
}

// CounterStore implements the fixed-window counters behind the rate
// limiter: one INCR round trip, expiry set on the window's first hit.
type CounterStore struct {
	client *Client
}

func NewCounterStore(client *Client) *CounterStore {
	return &CounterStore{client: client}
}

func (s *CounterStore) Increment(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	c := s.client.client

	count, err := c.Do(ctx, c.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	if count == 1 {
		if err := c.Do(ctx, c.B().Pexpire().Key(key).Milliseconds(expiry.Milliseconds()).Build()).Error(); err != nil {
			return count, fmt.Errorf("failed to set expiry on %s: %w", key, err)
		}
	}

	return count, nil
}

// MarkerStore keeps retry due-markers in sorted sets scored by due time.
type MarkerStore struct {
	client *Client
}

func NewMarkerStore(client *Client) *MarkerStore {
	return &MarkerStore{client: client}
}

func (s *MarkerStore) Add(ctx context.Context, key, member string, due time.Time) error {
	c := s.client.client

	err := c.Do(ctx, c.B().Zadd().Key(key).ScoreMember().
		ScoreMember(float64(due.UnixMilli()), member).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to add marker to %s: %w", key, err)
	}

	return nil
}

func (s *MarkerStore) Due(ctx context.Context, key string, now time.Time, limit int) ([]string, error) {
	c := s.client.client

	result := c.Do(ctx, c.B().Zrangebyscore().Key(key).
		Min("-inf").Max(strconv.FormatInt(now.UnixMilli(), 10)).
		Limit(0, int64(limit)).Build())

	members, err := result.AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to scan markers in %s: %w", key, err)
	}

	return members, nil
}

func (s *MarkerStore) Remove(ctx context.Context, key, member string) error {
	c := s.client.client

	if err := c.Do(ctx, c.B().Zrem().Key(key).Member(member).Build()).Error(); err != nil {
		return fmt.Errorf("failed to remove marker from %s: %w", key, err)
	}

	return nil
}
