// Package filestore implements the "shared file-backed append store"
// described in spec.md §2/§4.4: a JSON-lines file with an in-memory index
// rebuilt on start (dropping expired entries), mutated only through a
// single serializing mutex, with mutations committed by writing a
// temporary file and renaming it over the original.
//
// Grounded on storage/memory/memory.go's tx(func(){...}) single-mutex
// pattern, generalized from an in-memory map to one that also persists to
// disk, plus storage/memory's GarbageCollect expiry sweep.
package filestore

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yanniks/health-companion-prototype/internal/logging"
)

// ErrNotFound is returned when a key has no entry (or never had one —
// spec.md requires these to be indistinguishable from the caller's view).
var ErrNotFound = errors.New("filestore: not found")

// ErrAlreadyExists is returned by Create when the key is already present.
var ErrAlreadyExists = errors.New("filestore: already exists")

// Entry is the contract every record persisted in a Store must satisfy.
type Entry interface {
	// Key returns the entry's unique identifier within the store.
	Key() string
	// ExpiresAt returns when the entry should be dropped. A zero Time
	// means the entry never expires (e.g. patient records).
	ExpiresAt() time.Time
}

// Store is a generic, mutex-serialized, JSON-lines-backed map of entries.
type Store[T Entry] struct {
	mu     sync.Mutex
	path   string
	items  map[string]T
	logger logging.Logger
	now    func() time.Time
}

// Open rebuilds the index from path (creating the containing directory and
// an empty file if neither exists) and drops any already-expired entries.
func Open[T Entry](path string, logger logging.Logger) (*Store[T], error) {
	s := &Store[T]{
		path:   path,
		items:  make(map[string]T),
		logger: logger,
		now:    time.Now,
	}
	if err := s.load(); err != nil {
		return nil, errors.Wrapf(err, "filestore: loading %s", path)
	}
	return s, nil
}

func (s *Store[T]) load() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	now := s.now()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			s.logger.Warnf("filestore: skipping unparsable line in %s: %v", s.path, err)
			continue
		}
		if exp := item.ExpiresAt(); !exp.IsZero() && now.After(exp) {
			continue
		}
		s.items[item.Key()] = item
	}
	return scanner.Err()
}

// rewriteLocked serializes the full index to a temp file and renames it
// over the store's file. Caller must hold s.mu.
func (s *Store[T]) rewriteLocked() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".filestore-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, item := range s.items {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	success = true
	return nil
}

// Get returns the entry for key, or ErrNotFound.
func (s *Store[T]) Get(key string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	if exp := item.ExpiresAt(); !exp.IsZero() && s.now().After(exp) {
		var zero T
		return zero, ErrNotFound
	}
	return item, nil
}

// Create inserts item, failing with ErrAlreadyExists if its key is taken.
func (s *Store[T]) Create(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.Key()]; ok {
		return ErrAlreadyExists
	}
	s.items[item.Key()] = item
	return s.rewriteLocked()
}

// Put inserts or overwrites item unconditionally.
func (s *Store[T]) Put(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.Key()] = item
	return s.rewriteLocked()
}

// Consume atomically removes and returns the entry for key. Only one
// concurrent caller observes success for a given key: the mutex makes the
// check-and-delete a single critical section, which is what gives
// authorization codes and refresh tokens their single-use guarantee.
func (s *Store[T]) Consume(key string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	if exp := item.ExpiresAt(); !exp.IsZero() && s.now().After(exp) {
		delete(s.items, key)
		_ = s.rewriteLocked()
		var zero T
		return zero, ErrNotFound
	}
	delete(s.items, key)
	if err := s.rewriteLocked(); err != nil {
		var zero T
		return zero, err
	}
	return item, nil
}

// Delete removes key unconditionally; it is not an error if it is absent.
func (s *Store[T]) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)
	return s.rewriteLocked()
}

// List returns a snapshot of all non-expired entries, in no particular order.
func (s *Store[T]) List() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]T, 0, len(s.items))
	for _, item := range s.items {
		if exp := item.ExpiresAt(); !exp.IsZero() && now.After(exp) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Sweep drops all expired entries and returns how many were removed.
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, item := range s.items {
		if exp := item.ExpiresAt(); !exp.IsZero() && now.After(exp) {
			delete(s.items, key)
			removed++
		}
	}
	if removed > 0 {
		if err := s.rewriteLocked(); err != nil {
			s.logger.Errorf("filestore: sweep rewrite failed for %s: %v", s.path, err)
		}
	}
	return removed
}

// Update atomically applies fn to the entry for key and persists the
// result. fn receives (item, found); it returns the new item and whether
// to keep it (false deletes the entry).
func (s *Store[T]) Update(key string, fn func(item T, found bool) (T, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[key]
	if ok {
		if exp := current.ExpiresAt(); !exp.IsZero() && s.now().After(exp) {
			var zero T
			current = zero
			ok = false
		}
	}
	next, keep := fn(current, ok)
	if keep {
		s.items[key] = next
	} else {
		delete(s.items, key)
	}
	return s.rewriteLocked()
}

// RunSweeper starts a goroutine that calls Sweep on interval until stop is
// closed. Grounded on the teacher's keyRotator background-ticker shape
// (cmd/dex's key-rotation goroutine), generalized to any store's GC.
func RunSweeper[T Entry](s *Store[T], interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
