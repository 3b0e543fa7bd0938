package conversation

import (
	"context"
	"sync"

	"dutybot/pkg/platform/sentinel"
)

// MemoryStore keeps open conversations in memory. Conversations are never
// shared across actors, so the lock only protects the map itself.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]*State)}
}

func (s *MemoryStore) Get(_ context.Context, actorID int64) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[actorID]; ok {
		return st, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) Replace(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ActorID] = state
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, actorID)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states), nil
}
