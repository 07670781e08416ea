package store

import (
	"encoding/json"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	// Now is overridable in tests to exercise TTL expiry.
	Now func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string]*entry),
		Now:     time.Now,
	}
}

// Get implements Store.
func (s *MemStore) Get(key string, into any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	if e.expired(s.Now()) {
		delete(s.entries, key)
		return ErrNotFound
	}
	return json.Unmarshal(e.Value, into)
}

// Set implements Store.
func (s *MemStore) Set(key string, val any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := newEntry(val, ttl, s.Now())
	if err != nil {
		return err
	}
	s.entries[key] = e
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Clear implements Store.
func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}
