package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory session store suitable for development and
// single-process deployments
type MemoryStore struct {
	sessions sync.Map
}

type memoryEntry struct {
	state     *State
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get retrieves session state from memory
func (s *MemoryStore) Get(ctx context.Context, token string) (*State, error) {
	value, ok := s.sessions.Load(token)
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry := value.(*memoryEntry)
	if entry.expiresAt.Before(time.Now()) {
		s.sessions.Delete(token)
		return nil, ErrSessionNotFound
	}
	return entry.state, nil
}

// Set stores session state in memory
func (s *MemoryStore) Set(ctx context.Context, token string, state *State, ttl time.Duration) error {
	s.sessions.Store(token, &memoryEntry{state: state, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete removes session state from memory
func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.sessions.Delete(token)
	return nil
}
