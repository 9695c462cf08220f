package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process dedup ledger for tests and single-node runs.
type MemoryStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	group     string
	retention time.Duration
}

// NewMemoryStore returns an empty in-memory dedup store.
func NewMemoryStore(group string, retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		seen:      make(map[string]time.Time),
		group:     group,
		retention: retention,
	}
}

func (s *MemoryStore) HasApplied(_ context.Context, topic string, partition int32, offset int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.seen[key(s.group, topic, partition, offset)]
	if !ok {
		return false, nil
	}
	if time.Since(at) > s.retention {
		delete(s.seen, key(s.group, topic, partition, offset))
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) MarkApplied(_ context.Context, topic string, partition int32, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key(s.group, topic, partition, offset)] = time.Now()
	return nil
}
