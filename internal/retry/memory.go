package retry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryMarkerStore is the in-process MarkerStore used by tests and
// single-node deployments without Redis.
type MemoryMarkerStore struct {
	mu   sync.Mutex
	sets map[string]map[string]time.Time
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{
		sets: make(map[string]map[string]time.Time),
	}
}

func (s *MemoryMarkerStore) Add(ctx context.Context, key, member string, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sets[key] == nil {
		s.sets[key] = make(map[string]time.Time)
	}
	s.sets[key][member] = due
	return nil
}

func (s *MemoryMarkerStore) Due(ctx context.Context, key string, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		member string
		due    time.Time
	}

	var due []entry
	for member, at := range s.sets[key] {
		if !at.After(now) {
			due = append(due, entry{member: member, due: at})
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	members := make([]string, 0, len(due))
	for _, e := range due {
		members = append(members, e.member)
	}
	return members, nil
}

func (s *MemoryMarkerStore) Remove(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sets[key], member)
	return nil
}
