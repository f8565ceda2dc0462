package state

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshots in process memory for single-instance mode.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// Put replaces the snapshot of one source.
// Params: snapshot with source and revision set.
// Returns: validation error.
func (s *MemoryStore) Put(_ context.Context, snapshot Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Source] = snapshot
	return nil
}

// Get returns the latest snapshot of one source.
// Params: source name.
// Returns: snapshot or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, source string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[source]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshot, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
