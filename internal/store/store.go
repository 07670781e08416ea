// Package store provides namespaced key/value persistence with per-entry TTL
// semantics. It backs the token set, the user snapshot and the course catalog
// cache between runs.
package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence contract shared by the file-backed and in-memory
// implementations. An expired entry behaves exactly like an absent one.
type Store interface {
	// Get unmarshals the stored value into into. Returns ErrNotFound when the
	// key is absent or expired.
	Get(key string, into any) error
	// Set stores val under key. A non-positive ttl means no expiry.
	Set(key string, val any, ttl time.Duration) error
	Delete(key string) error
	// Clear removes every entry in the namespace.
	Clear() error
}

// entry wraps a stored value with its own expiry metadata.
type entry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func (e *entry) expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

func newEntry(val any, ttl time.Duration, now time.Time) (*entry, error) {
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	e := &entry{Value: raw}
	if ttl > 0 {
		exp := now.Add(ttl)
		e.ExpiresAt = &exp
	}
	return e, nil
}
