// Package store implements the durable-store contract: load()/save() per
// aggregate, atomic write-temp-then-rename persistence, and first-run
// default materialization. Every aggregate (portfolio, futures, options,
// watchlist) gets its own file under a configurable data directory.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/atmx/crossengine/internal/engineerr"
)

// FileStore persists a single JSON-serializable aggregate to one file,
// using temp-write-then-rename so a reader never observes a torn file.
// Concurrent saves to the same FileStore are serialized by mu; the last
// writer to acquire the lock wins.
type FileStore[T any] struct {
	path     string
	defaults func() T

	mu sync.Mutex
}

// NewFileStore builds a store rooted at path. defaults is invoked on
// first run (file absent) to materialize and persist the aggregate's
// zero state.
func NewFileStore[T any](path string, defaults func() T) *FileStore[T] {
	return &FileStore[T]{path: path, defaults: defaults}
}

// Load reads the aggregate from disk. If the file does not exist yet,
// Load writes defaults atomically and returns a copy of them.
func (s *FileStore[T]) Load() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			v := s.defaults()
			if saveErr := s.saveLocked(v); saveErr != nil {
				var zero T
				return zero, saveErr
			}
			return v, nil
		}
		var zero T
		return zero, fmt.Errorf("%w: reading %s: %v", engineerr.ErrPersistence, s.path, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: decoding %s: %v", engineerr.ErrPersistence, s.path, err)
	}
	return v, nil
}

// Save persists v, replacing whatever is currently on disk.
func (s *FileStore[T]) Save(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(v)
}

func (s *FileStore[T]) saveLocked(v T) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", engineerr.ErrPersistence, dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", engineerr.ErrPersistence, s.path, err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(s.path), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", engineerr.ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: renaming %s to %s: %v", engineerr.ErrPersistence, tmp, s.path, err)
	}
	return nil
}
