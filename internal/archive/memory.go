package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/werewolf/internal/game"
)

// MemStore keeps archives in memory. It is the default when no durable
// backend is configured and the backend used by tests.
type MemStore struct {
	mu       sync.RWMutex
	archives map[string]game.Archive
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{archives: make(map[string]game.Archive)}
}

// Save implements [Store].
func (m *MemStore) Save(_ context.Context, a game.Archive) error {
	if !ValidID(a.ID) {
		return fmt.Errorf("archive: invalid id %q", a.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.archives[a.ID]; ok {
		return fmt.Errorf("archive: save %q: %w", a.ID, ErrExists)
	}
	m.archives[a.ID] = a
	return nil
}

// Get implements [Store].
func (m *MemStore) Get(_ context.Context, id string) (game.Archive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.archives[id]
	if !ok {
		return game.Archive{}, fmt.Errorf("archive: get %q: %w", id, ErrNotFound)
	}
	return a, nil
}

// List implements [Store].
func (m *MemStore) List(_ context.Context) ([]game.Summary, error) {
	m.mu.RLock()
	out := make([]game.Summary, 0, len(m.archives))
	for _, a := range m.archives {
		out = append(out, a.Summary())
	}
	m.mu.RUnlock()
	SortSummaries(out)
	return out, nil
}

// Delete implements [Store].
func (m *MemStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.archives[id]; !ok {
		return fmt.Errorf("archive: delete %q: %w", id, ErrNotFound)
	}
	delete(m.archives, id)
	return nil
}
