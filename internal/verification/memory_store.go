package verification

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	challenge Challenge
	expiresAt time.Time
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]entry), nowF: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, key string, c Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{challenge: c, expiresAt: s.nowF().Add(ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return nil, nil
	}
	c := e.challenge
	return &c, nil
}

func (s *MemoryStore) Update(_ context.Context, key string, c Challenge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return false, nil
	}
	e.challenge = c
	s.m[key] = e
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); !ok {
		return false, nil
	}
	delete(s.m, key)
	return true, nil
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (s *MemoryStore) live(key string) (entry, bool) {
	e, ok := s.m[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return entry{}, false
	}
	return e, true
}
