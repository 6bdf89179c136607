package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Store persists job state. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, s State) error
	Get(ctx context.Context, id string) (State, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]State, error)
}

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]State)}
}

func (m *MemoryStore) Put(_ context.Context, s State) error {
	m.mu.Lock()
	m.jobs[s.ID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.jobs[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	return nil
}

// List returns every job, oldest first.
func (m *MemoryStore) List(_ context.Context) ([]State, error) {
	m.mu.RLock()
	out := make([]State, 0, len(m.jobs))
	for _, s := range m.jobs {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
