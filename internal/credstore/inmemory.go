package credstore

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process store for local/dev use. State does
// not survive restarts, which downgrades hasState to false after a restart
// until the next successful run.
type InMemoryStore struct {
	mu     sync.RWMutex
	creds  map[string]Credentials
	states map[string]PortalState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		creds:  make(map[string]Credentials),
		states: make(map[string]PortalState),
	}
}

func (s *InMemoryStore) SaveCredentials(_ context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.creds[creds.Account]; ok {
		creds.SavedAt = existing.SavedAt
	} else {
		creds.SavedAt = now
	}
	creds.UpdatedAt = now
	s.creds[creds.Account] = creds
	return nil
}

func (s *InMemoryStore) GetCredentials(_ context.Context, account string) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.creds[account]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *InMemoryStore) SavePortalState(_ context.Context, state PortalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now().UTC()
	}
	s.states[state.Account] = state
	return nil
}

func (s *InMemoryStore) GetPortalState(_ context.Context, account string) (PortalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[account]
	if !ok {
		return PortalState{}, ErrNotFound
	}
	return state, nil
}

func (s *InMemoryStore) HasPortalState(_ context.Context, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[account]
	return ok, nil
}

func (s *InMemoryStore) Close() error { return nil }
