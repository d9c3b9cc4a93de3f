package kvstore

import (
	"context"
	"strings"
	"sync"

	"github.com/taskmaster/planner/internal/ports"
)

// MemoryStore is a bounded in-memory KeyValueStore. It mirrors the host
// store's semantics (synchronous, string-valued, capacity-limited) and backs
// local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]string
	capacity int // total bytes of keys+values; 0 means unbounded
	used     int
}

// NewMemoryStore creates a memory store with the given byte capacity.
// A capacity of 0 disables the bound.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]string),
		capacity: capacity,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.used + len(key) + len(value)
	if prev, ok := s.data[key]; ok {
		next -= len(key) + len(prev)
	}
	if s.capacity > 0 && next > s.capacity {
		return ports.ErrCapacityExceeded
	}

	s.data[key] = value
	s.used = next
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.data[key]; ok {
		s.used -= len(key) + len(prev)
		delete(s.data, key)
	}
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
