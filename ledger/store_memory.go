package ledger

import (
	"context"
	"sync"
)

// InMemoryStore keeps markers in process memory. It does not survive a restart
// and is meant for tests and simulations.
type InMemoryStore struct {
	mu      sync.RWMutex
	markers map[string]struct{}
}

// NewInMemoryStore creates an empty store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{markers: make(map[string]struct{})}
}

func (s *InMemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.markers[key]
	return ok, nil
}

func (s *InMemoryStore) Put(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[key] = struct{}{}
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = make(map[string]struct{})
	return nil
}

// Len returns the number of markers
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

var _ Store = (*InMemoryStore)(nil)
