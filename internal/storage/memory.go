package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lunabay/chapter-engine/pkg/state"
)

// MemoryStore is an in-memory ProgressStore for tests and for running the
// console player without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	progress map[uuid.UUID]state.PlayerProgress
}

var _ ProgressStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[uuid.UUID]state.PlayerProgress),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) SaveProgress(ctx context.Context, attemptID uuid.UUID, progress *state.PlayerProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[attemptID] = progress.Clone()
	return nil
}

func (m *MemoryStore) LoadProgress(ctx context.Context, attemptID uuid.UUID) (*state.PlayerProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.progress[attemptID]
	if !ok {
		return nil, nil
	}
	out := stored.Clone()
	return &out, nil
}

func (m *MemoryStore) DeleteProgress(ctx context.Context, attemptID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, attemptID)
	return nil
}
