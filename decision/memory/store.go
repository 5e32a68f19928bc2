package memory

import (
	"context"
	"sync"

	"github.com/marcelsud/priorauth-notify/decision"
)

// Store keeps decisions in process memory
type Store struct {
	mu        sync.RWMutex
	decisions map[string]decision.Decision
}

func NewStore() *Store {
	return &Store{decisions: make(map[string]decision.Decision)}
}

func (s *Store) Put(_ context.Context, d decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[d.ID] = d
	return nil
}

func (s *Store) Get(_ context.Context, id string) (decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	if !ok {
		return decision.Decision{}, decision.ErrNotFound
	}
	return d, nil
}
