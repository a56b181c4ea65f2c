package store

import (
	"context"
	"sync"

	"tradekaro/internal/models"
)

// MemoryStore keeps state in process memory. Used by tests and --store memory.
type MemoryStore struct {
	mu    sync.RWMutex
	state *Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: NewSnapshot(),
	}
}

// Load returns a deep copy of the stored state.
func (m *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

// Commit applies cs under a single lock.
func (m *MemoryStore) Commit(ctx context.Context, cs *Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Apply(cs)
	return nil
}

// Orders returns orders matching filter, newest first.
func (m *MemoryStore) Orders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterOrders(m.state.Orders, filter), nil
}

// Reset clears all state.
func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = NewSnapshot()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
