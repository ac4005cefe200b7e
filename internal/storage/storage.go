// Package storage defines the persistence contract the entry pipeline
// is built against.
//
// Repository is deliberately small: the collector needs durable saves
// and the post-save family-hash update, the tagging collaborator needs
// tag attachment, and the pruner needs age-based deletion. Everything
// else (layout, indexing, compression) is the implementation's concern.
//
// Implementations must tolerate concurrent Save and SaveBatch calls.
// The only cross-caller guarantee is that a completed save is visible
// to a subsequent query.
package storage

import (
	"context"
	"errors"
	"time"

	"spyglass/internal/entry"
)

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("entry not found")

// Repository persists entries.
type Repository interface {
	// Save persists one entry and returns it with its assigned id.
	Save(ctx context.Context, e entry.Entry) (entry.Entry, error)

	// SaveBatch persists entries in order and returns them with ids
	// assigned, in the same order. Implementations make the batch
	// atomic where the backend allows it.
	SaveBatch(ctx context.Context, entries []entry.Entry) ([]entry.Entry, error)

	// UpdateFamilyHash sets the family hash of a saved entry.
	UpdateFamilyHash(ctx context.Context, id int64, hash string) error

	// AddTags attaches labels to a saved entry. Tags already present
	// are ignored.
	AddTags(ctx context.Context, id int64, tags []string) error

	// Find returns the entry with the given id, or ErrNotFound.
	Find(ctx context.Context, id int64) (entry.Entry, error)

	// List returns entries matching q, newest first.
	List(ctx context.Context, q Query) ([]entry.Entry, error)

	// Prune deletes entries stamped before the cutoff and returns the
	// count deleted.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Query narrows List results. Zero fields match everything.
type Query struct {
	Kind          entry.Kind
	FamilyHash    string
	CorrelationID string
	Tag           string

	// Before keeps only entries stamped strictly before it.
	Before time.Time

	// Limit caps the result count. Zero means no cap.
	Limit int
}
