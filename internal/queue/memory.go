package queue

import (
	"context"
	"sync"
	"time"

	"github.com/invitedesk/invite-dispatch-service/internal/domain"
)

// MemoryJobStore is the in-process JobStore used by tests and single-node
// deployments without Redis. Records expire after the configured TTL.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]memoryRecord
	ttl  time.Duration
	now  func() time.Time
}

type memoryRecord struct {
	job       domain.Job
	expiresAt time.Time
}

func NewMemoryJobStore(ttl time.Duration) *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]memoryRecord),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryJobStore) Save(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = memoryRecord{
		job:       *job,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok || s.now().After(rec.expiresAt) {
		delete(s.jobs, id)
		return nil, ErrNotFound
	}

	job := rec.job
	return &job, nil
}

func (s *MemoryJobStore) Update(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[job.ID]
	if !ok || s.now().After(rec.expiresAt) {
		delete(s.jobs, job.ID)
		return ErrNotFound
	}

	if rec.job.Version != job.Version {
		return ErrVersionConflict
	}

	job.Version++
	s.jobs[job.ID] = memoryRecord{
		job:       *job,
		expiresAt: rec.expiresAt,
	}
	return nil
}

// MemoryListStore is the in-process ListStore counterpart.
type MemoryListStore struct {
	mu    sync.Mutex
	lists map[string][]string
}

func NewMemoryListStore() *MemoryListStore {
	return &MemoryListStore{
		lists: make(map[string][]string),
	}
}

func (s *MemoryListStore) Push(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists[key] = append(s.lists[key], value)
	return nil
}

func (s *MemoryListStore) Pop(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if len(list) == 0 {
		return "", false, nil
	}

	value := list[0]
	s.lists[key] = list[1:]
	return value, true, nil
}
