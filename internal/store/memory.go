package store

import (
	"context"
	"sync"

	"github.com/adreel/api/internal/model"
)

// MemoryRunStore keeps run states in process memory
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]model.RunState
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]model.RunState)}
}

func (s *MemoryRunStore) Create(ctx context.Context, state *model.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[state.RunID]; ok {
		return ErrRunExists
	}
	s.runs[state.RunID] = *state
	return nil
}

func (s *MemoryRunStore) Put(ctx context.Context, state *model.RunState) error {
	s.mu.Lock()
	s.runs[state.RunID] = *state
	s.mu.Unlock()
	return nil
}

func (s *MemoryRunStore) Get(ctx context.Context, runID string) (*model.RunState, error) {
	s.mu.RLock()
	state, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrRunNotFound
	}
	return &state, nil
}
