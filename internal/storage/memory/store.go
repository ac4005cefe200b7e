// Package memory provides a volatile in-process Repository. Intended
// for tests and the demo command; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"spyglass/internal/entry"
	"spyglass/internal/storage"
)

// Store keeps entries in a map guarded by a single mutex. IDs are a
// monotonically increasing sequence, never reused, matching what the
// durable stores hand out.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[int64]entry.Entry
}

var _ storage.Repository = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{entries: make(map[int64]entry.Entry)}
}

// Save persists one entry and returns it with its assigned id.
func (s *Store) Save(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	if err := e.Validate(); err != nil {
		return entry.Entry{}, fmt.Errorf("save: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(e), nil
}

// SaveBatch persists entries in order under one lock acquisition, so a
// batch is never interleaved with concurrent saves.
func (s *Store) SaveBatch(ctx context.Context, entries []entry.Entry) ([]entry.Entry, error) {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("save batch entry %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]entry.Entry, len(entries))
	for i, e := range entries {
		saved[i] = s.saveLocked(e)
	}
	return saved, nil
}

func (s *Store) saveLocked(e entry.Entry) entry.Entry {
	s.nextID++
	e.ID = s.nextID
	e.Tags = slices.Clone(e.Tags)
	s.entries[e.ID] = e
	return e
}

// UpdateFamilyHash sets the family hash of a saved entry.
func (s *Store) UpdateFamilyHash(ctx context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("update family hash %d: %w", id, storage.ErrNotFound)
	}
	e.FamilyHash = hash
	s.entries[id] = e
	return nil
}

// AddTags attaches labels to a saved entry, ignoring duplicates.
func (s *Store) AddTags(ctx context.Context, id int64, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("add tags %d: %w", id, storage.ErrNotFound)
	}
	for _, t := range tags {
		if !slices.Contains(e.Tags, t) {
			e.Tags = append(e.Tags, t)
		}
	}
	s.entries[id] = e
	return nil
}

// Find returns the entry with the given id.
func (s *Store) Find(ctx context.Context, id int64) (entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return entry.Entry{}, fmt.Errorf("find %d: %w", id, storage.ErrNotFound)
	}
	e.Tags = slices.Clone(e.Tags)
	return e, nil
}

// List returns entries matching q, newest first.
func (s *Store) List(ctx context.Context, q storage.Query) ([]entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entry.Entry
	for _, e := range s.entries {
		if !matches(e, q) {
			continue
		}
		e.Tags = slices.Clone(e.Tags)
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b entry.Entry) int {
		if !a.Timestamp.Equal(b.Timestamp) {
			return b.Timestamp.Compare(a.Timestamp)
		}
		return int(b.ID - a.ID)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Prune deletes entries stamped before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.entries {
		if e.Timestamp.Before(before) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries. Test and demo surface.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matches(e entry.Entry, q storage.Query) bool {
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.FamilyHash != "" && e.FamilyHash != q.FamilyHash {
		return false
	}
	if q.CorrelationID != "" && e.CorrelationID != q.CorrelationID {
		return false
	}
	if q.Tag != "" && !slices.Contains(e.Tags, q.Tag) {
		return false
	}
	if !q.Before.IsZero() && !e.Timestamp.Before(q.Before) {
		return false
	}
	return true
}
