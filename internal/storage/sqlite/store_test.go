package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spyglass/internal/entry"
	"spyglass/internal/storage"
	"spyglass/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "spyglass.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storagetest.TestRepository(t, func(t *testing.T) storage.Repository {
		return newTestStore(t)
	})
}

func TestStoreReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "spyglass.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	e := entry.New(entry.LogPayload{Severity: entry.SeverityInfo, Message: "survives restarts"},
		time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC))
	saved, err := s.Save(ctx, e)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.AddTags(ctx, saved.ID, []string{"durable"}); err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Find(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Find after reopen: %v", err)
	}
	p, ok := got.Payload.(entry.LogPayload)
	if !ok {
		t.Fatalf("payload type = %T, want entry.LogPayload", got.Payload)
	}
	if p.Message != "survives restarts" {
		t.Errorf("message = %q, want %q", p.Message, "survives restarts")
	}
	if !got.Timestamp.Equal(e.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, e.Timestamp)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "durable" {
		t.Errorf("tags = %v, want [durable]", got.Tags)
	}
}

func TestStoreDoesNotReuseIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.Save(ctx, entry.New(entry.EventPayload{Name: "one"}, time.Now()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Prune(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	second, err := s.Save(ctx, entry.New(entry.EventPayload{Name: "two"}, time.Now()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("id after prune = %d, want > %d", second.ID, first.ID)
	}
}

func TestStoreLargePayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	trace := strings.Repeat("    at handler (/var/www/app/src/controllers/report.ts:42:7)\n", 200)
	if len(trace) < compressThreshold {
		t.Fatalf("trace too small to exercise compression: %d bytes", len(trace))
	}
	e := entry.New(entry.ExceptionPayload{
		Class:   "ReportTimeout",
		Message: "report generation timed out",
		Trace:   trace,
	}, time.Now())

	saved, err := s.Save(ctx, e)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	var compressed bool
	if err := s.db.QueryRow("SELECT compressed FROM entries WHERE id = ?", saved.ID).Scan(&compressed); err != nil {
		t.Fatalf("read compressed flag: %v", err)
	}
	if !compressed {
		t.Error("large payload was not compressed")
	}

	got, err := s.Find(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	p, ok := got.Payload.(entry.ExceptionPayload)
	if !ok {
		t.Fatalf("payload type = %T, want entry.ExceptionPayload", got.Payload)
	}
	if p.Trace != trace {
		t.Error("trace did not round-trip through compression")
	}
}
