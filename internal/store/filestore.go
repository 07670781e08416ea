package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore persists entries as JSON files under a state directory, one file
// per key. Files are created 0600 since they hold bearer tokens.
type FileStore struct {
	dir string
	mu  sync.Mutex

	// now is overridable in tests.
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) path(key string) string {
	// Keys are internal constants but may embed course/module names; keep the
	// filename filesystem-safe.
	repl := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	return filepath.Join(s.dir, repl.Replace(key)+".json")
}

// Get implements Store. Expired entries are removed on read.
func (s *FileStore) Get(key string, into any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A corrupt entry is treated as absent rather than poisoning callers.
		_ = os.Remove(s.path(key))
		return ErrNotFound
	}
	if e.expired(s.now()) {
		_ = os.Remove(s.path(key))
		return ErrNotFound
	}
	return json.Unmarshal(e.Value, into)
}

// Set implements Store.
func (s *FileStore) Set(key string, val any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := newEntry(val, ttl, s.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return os.Rename(tmp, s.path(key))
}

// Delete implements Store.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list state dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, de.Name())); err != nil {
			return fmt.Errorf("clear %s: %w", de.Name(), err)
		}
	}
	return nil
}
