// Package entry defines the telemetry record model: the closed set of
// entry kinds, one payload struct per kind, and the Entry envelope that
// flows through collection, persistence, and enrichment.
//
// An Entry is created in memory at collection time, gains its ID when a
// flush persists it, and is enriched (family hash, tags) immediately
// after persistence. After that it is immutable except for tags; it
// disappears only when the retention sweeper deletes it by age.
//
// The payload carries its own kind (Payload.Kind), so an entry whose
// Kind disagrees with its payload cannot be built through New.
package entry

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownKind is returned for a kind outside the closed set.
	ErrUnknownKind = errors.New("unknown entry kind")
	// ErrNoPayload is returned when an entry carries no payload.
	ErrNoPayload = errors.New("entry has no payload")
	// ErrKindMismatch is returned when an entry's kind disagrees with its payload.
	ErrKindMismatch = errors.New("entry kind does not match payload")
	// ErrNoTimestamp is returned when an entry was never stamped.
	ErrNoTimestamp = errors.New("entry has no timestamp")
)

// Entry is the unit of telemetry.
type Entry struct {
	// ID is assigned by storage on save. Zero means not yet persisted.
	ID int64 `json:"id,omitempty"`

	// Kind identifies the payload shape. Always equal to Payload.Kind().
	Kind Kind `json:"kind"`

	// Payload is the kind-specific body.
	Payload Payload `json:"payload"`

	// Timestamp is the collection time, never the flush time.
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID links entries produced by one logical operation
	// (one request, one job run). Empty when uncorrelated.
	CorrelationID string `json:"correlationId,omitempty"`

	// FamilyHash groups recurring similar entries. Assigned once after
	// save; empty means no grouping is defined for this kind.
	FamilyHash string `json:"familyHash,omitempty"`

	// Tags are free-form labels attached after save.
	Tags []string `json:"tags,omitempty"`
}

// New builds an unsaved entry for p, stamped with ts. The kind is
// derived from the payload.
func New(p Payload, ts time.Time) Entry {
	return Entry{Kind: p.Kind(), Payload: p, Timestamp: ts}
}

// Saved reports whether the entry has been persisted.
func (e Entry) Saved() bool {
	return e.ID != 0
}

// Validate reports whether the entry is well-formed enough to persist.
func (e Entry) Validate() error {
	if e.Payload == nil {
		return ErrNoPayload
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if e.Kind != e.Payload.Kind() {
		return fmt.Errorf("%w: entry %q, payload %q", ErrKindMismatch, e.Kind, e.Payload.Kind())
	}
	if e.Timestamp.IsZero() {
		return ErrNoTimestamp
	}
	return nil
}

// NewCorrelationID returns a fresh UUIDv7 correlation id. V7 ids are
// time-ordered, so entries from the same operation cluster in scans.
func NewCorrelationID() string {
	return uuid.Must(uuid.NewV7()).String()
}
