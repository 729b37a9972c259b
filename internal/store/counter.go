// Package store holds small keyed state that must survive a page reload
// within one exam attempt.
package store

import (
	"context"
	"sync"
)

// CounterStore is a keyed, persisted counter.
type CounterStore interface {
	// Get returns the current value, or 0 when the key is absent.
	Get(ctx context.Context, key string) (int, error)
	// Incr adds one and returns the new value.
	Incr(ctx context.Context, key string) (int, error)
	// Clear removes the key.
	Clear(ctx context.Context, key string) error
}

// MemoryCounterStore keeps counters in process memory. It survives a
// controller restart inside the same process but not a process restart.
type MemoryCounterStore struct {
	mu     sync.Mutex
	values map[string]int
}

// NewMemoryCounterStore creates an empty MemoryCounterStore.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{values: make(map[string]int)}
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key]++
	return s.values[key], nil
}

func (s *MemoryCounterStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
