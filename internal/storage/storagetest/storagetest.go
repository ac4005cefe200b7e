// Package storagetest provides a shared conformance test suite for
// storage.Repository implementations. Each backend (memory, sqlite,
// redis) wires this suite to verify it satisfies the full contract.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"spyglass/internal/entry"
	"spyglass/internal/storage"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func logEntry(msg string, ts time.Time) entry.Entry {
	return entry.New(entry.LogPayload{Severity: entry.SeverityInfo, Message: msg}, ts)
}

// TestRepository runs the full conformance suite against a Repository
// implementation. newRepo must return a fresh, empty repository for
// each sub-test.
func TestRepository(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("SaveAssignsID", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		e := entry.New(entry.QueryPayload{SQL: "SELECT 1", Source: "main", DurationMS: 1.5}, baseTime)
		e.CorrelationID = entry.NewCorrelationID()

		saved, err := r.Save(ctx, e)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if saved.ID == 0 {
			t.Fatal("Save did not assign an id")
		}

		got, err := r.Find(ctx, saved.ID)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got.Kind != entry.KindQuery {
			t.Errorf("Kind: expected %q, got %q", entry.KindQuery, got.Kind)
		}
		if !got.Timestamp.Equal(e.Timestamp) {
			t.Errorf("Timestamp: expected %v, got %v", e.Timestamp, got.Timestamp)
		}
		if got.CorrelationID != e.CorrelationID {
			t.Errorf("CorrelationID: expected %q, got %q", e.CorrelationID, got.CorrelationID)
		}
		p, ok := got.Payload.(entry.QueryPayload)
		if !ok {
			t.Fatalf("Payload: expected QueryPayload, got %T", got.Payload)
		}
		if p.SQL != "SELECT 1" || p.Source != "main" || p.DurationMS != 1.5 {
			t.Errorf("Payload round-trip: got %+v", p)
		}
	})

	t.Run("SaveRejectsInvalid", func(t *testing.T) {
		r := newRepo(t)

		bad := entry.Entry{Kind: entry.KindQuery, Payload: entry.LogPayload{}, Timestamp: baseTime}
		if _, err := r.Save(context.Background(), bad); err == nil {
			t.Fatal("expected error saving entry with mismatched kind")
		}
	})

	t.Run("SaveBatchAssignsIDsInOrder", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		batch := []entry.Entry{
			logEntry("first", baseTime),
			logEntry("second", baseTime.Add(time.Second)),
			logEntry("third", baseTime.Add(2*time.Second)),
		}

		saved, err := r.SaveBatch(ctx, batch)
		if err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}
		if len(saved) != 3 {
			t.Fatalf("expected 3 saved entries, got %d", len(saved))
		}

		seen := map[int64]bool{}
		for i, s := range saved {
			if s.ID == 0 {
				t.Fatalf("entry %d has no id", i)
			}
			if seen[s.ID] {
				t.Fatalf("id %d assigned twice", s.ID)
			}
			seen[s.ID] = true

			p, ok := s.Payload.(entry.LogPayload)
			if !ok {
				t.Fatalf("entry %d: expected LogPayload, got %T", i, s.Payload)
			}
			want := []string{"first", "second", "third"}[i]
			if p.Message != want {
				t.Errorf("entry %d out of order: message %q, want %q", i, p.Message, want)
			}

			if _, err := r.Find(ctx, s.ID); err != nil {
				t.Errorf("Find(%d) after batch: %v", s.ID, err)
			}
		}
	})

	t.Run("SaveBatchEmpty", func(t *testing.T) {
		r := newRepo(t)

		saved, err := r.SaveBatch(context.Background(), nil)
		if err != nil {
			t.Fatalf("SaveBatch(nil): %v", err)
		}
		if len(saved) != 0 {
			t.Fatalf("expected empty result, got %d entries", len(saved))
		}
	})

	t.Run("FindNotFound", func(t *testing.T) {
		r := newRepo(t)

		_, err := r.Find(context.Background(), 12345)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Find of missing id: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateFamilyHash", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		saved, err := r.Save(ctx, logEntry("boom", baseTime))
		if err != nil {
			t.Fatalf("Save: %v", err)
		}

		if err := r.UpdateFamilyHash(ctx, saved.ID, "00deadbeef00cafe"); err != nil {
			t.Fatalf("UpdateFamilyHash: %v", err)
		}

		got, err := r.Find(ctx, saved.ID)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got.FamilyHash != "00deadbeef00cafe" {
			t.Errorf("FamilyHash: expected %q, got %q", "00deadbeef00cafe", got.FamilyHash)
		}

		if err := r.UpdateFamilyHash(ctx, 99999, "ffffffffffffffff"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("UpdateFamilyHash of missing id: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AddTags", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		saved, err := r.Save(ctx, logEntry("tagged", baseTime))
		if err != nil {
			t.Fatalf("Save: %v", err)
		}

		if err := r.AddTags(ctx, saved.ID, []string{"slow", "status:500"}); err != nil {
			t.Fatalf("AddTags: %v", err)
		}
		// Overlapping second attach: duplicates must be ignored.
		if err := r.AddTags(ctx, saved.ID, []string{"status:500", "retried"}); err != nil {
			t.Fatalf("AddTags second: %v", err)
		}

		got, err := r.Find(ctx, saved.ID)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		want := []string{"slow", "status:500", "retried"}
		if len(got.Tags) != len(want) {
			t.Fatalf("Tags: expected %v, got %v", want, got.Tags)
		}
		for _, w := range want {
			if !slices.Contains(got.Tags, w) {
				t.Errorf("Tags missing %q: got %v", w, got.Tags)
			}
		}

		if err := r.AddTags(ctx, 99999, []string{"x"}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("AddTags of missing id: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListByKind", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		seed := []entry.Entry{
			entry.New(entry.QueryPayload{SQL: "SELECT 1"}, baseTime),
			logEntry("a", baseTime.Add(time.Second)),
			entry.New(entry.QueryPayload{SQL: "SELECT 2"}, baseTime.Add(2*time.Second)),
		}
		if _, err := r.SaveBatch(ctx, seed); err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}

		got, err := r.List(ctx, storage.Query{Kind: entry.KindQuery})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 query entries, got %d", len(got))
		}
		for _, e := range got {
			if e.Kind != entry.KindQuery {
				t.Errorf("List returned kind %q", e.Kind)
			}
		}
	})

	t.Run("ListByFamilyHash", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		a, _ := r.Save(ctx, logEntry("a", baseTime))
		b, _ := r.Save(ctx, logEntry("b", baseTime.Add(time.Second)))
		if err := r.UpdateFamilyHash(ctx, a.ID, "1111111111111111"); err != nil {
			t.Fatalf("UpdateFamilyHash: %v", err)
		}
		if err := r.UpdateFamilyHash(ctx, b.ID, "2222222222222222"); err != nil {
			t.Fatalf("UpdateFamilyHash: %v", err)
		}

		got, err := r.List(ctx, storage.Query{FamilyHash: "1111111111111111"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].ID != a.ID {
			t.Fatalf("expected only entry %d, got %+v", a.ID, got)
		}
	})

	t.Run("ListByCorrelationID", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		corr := entry.NewCorrelationID()
		e1 := logEntry("one", baseTime)
		e1.CorrelationID = corr
		e2 := entry.New(entry.QueryPayload{SQL: "SELECT 1"}, baseTime.Add(time.Second))
		e2.CorrelationID = corr
		e3 := logEntry("unrelated", baseTime.Add(2*time.Second))

		if _, err := r.SaveBatch(ctx, []entry.Entry{e1, e2, e3}); err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}

		got, err := r.List(ctx, storage.Query{CorrelationID: corr})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 correlated entries, got %d", len(got))
		}
	})

	t.Run("ListByTag", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		a, _ := r.Save(ctx, logEntry("a", baseTime))
		if _, err := r.Save(ctx, logEntry("b", baseTime.Add(time.Second))); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := r.AddTags(ctx, a.ID, []string{"slow"}); err != nil {
			t.Fatalf("AddTags: %v", err)
		}

		got, err := r.List(ctx, storage.Query{Tag: "slow"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].ID != a.ID {
			t.Fatalf("expected only entry %d, got %+v", a.ID, got)
		}
	})

	t.Run("ListNewestFirstWithLimit", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		for i := range 5 {
			e := logEntry(fmt.Sprintf("msg %d", i), baseTime.Add(time.Duration(i)*time.Minute))
			if _, err := r.Save(ctx, e); err != nil {
				t.Fatalf("Save %d: %v", i, err)
			}
		}

		got, err := r.List(ctx, storage.Query{Limit: 3})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp.After(got[i-1].Timestamp) {
				t.Errorf("List not newest first: %v before %v", got[i-1].Timestamp, got[i].Timestamp)
			}
		}
		if p := got[0].Payload.(entry.LogPayload); p.Message != "msg 4" {
			t.Errorf("newest entry message = %q, want %q", p.Message, "msg 4")
		}
	})

	t.Run("ListBefore", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		old, _ := r.Save(ctx, logEntry("old", baseTime))
		if _, err := r.Save(ctx, logEntry("new", baseTime.Add(time.Hour))); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := r.List(ctx, storage.Query{Before: baseTime.Add(30 * time.Minute)})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 1 || got[0].ID != old.ID {
			t.Fatalf("expected only the old entry, got %+v", got)
		}
	})

	t.Run("PruneDeletesOnlyOlder", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		cutoff := baseTime.Add(time.Hour)
		if _, err := r.SaveBatch(ctx, []entry.Entry{
			logEntry("ancient", baseTime),
			logEntry("older", baseTime.Add(30*time.Minute)),
			logEntry("at cutoff", cutoff),
			logEntry("newer", cutoff.Add(time.Minute)),
		}); err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}

		n, err := r.Prune(ctx, cutoff)
		if err != nil {
			t.Fatalf("Prune: %v", err)
		}
		if n != 2 {
			t.Errorf("Prune deleted %d entries, want 2", n)
		}

		left, err := r.List(ctx, storage.Query{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(left) != 2 {
			t.Fatalf("expected 2 survivors, got %d", len(left))
		}
		for _, e := range left {
			if e.Timestamp.Before(cutoff) {
				t.Errorf("entry stamped %v survived a prune at %v", e.Timestamp, cutoff)
			}
		}

		// Survivors keep surviving: a second identical sweep deletes nothing.
		n, err = r.Prune(ctx, cutoff)
		if err != nil {
			t.Fatalf("Prune again: %v", err)
		}
		if n != 0 {
			t.Errorf("second Prune deleted %d entries, want 0", n)
		}
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		const workers = 8
		const perWorker = 20

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range perWorker {
					e := logEntry(fmt.Sprintf("w%d-%d", w, i), baseTime.Add(time.Duration(i)*time.Millisecond))
					var err error
					if i%2 == 0 {
						_, err = r.Save(ctx, e)
					} else {
						_, err = r.SaveBatch(ctx, []entry.Entry{e})
					}
					if err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent save: %v", err)
		}

		got, err := r.List(ctx, storage.Query{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != workers*perWorker {
			t.Fatalf("expected %d entries, got %d", workers*perWorker, len(got))
		}
		seen := map[int64]bool{}
		for _, e := range got {
			if seen[e.ID] {
				t.Fatalf("id %d assigned twice", e.ID)
			}
			seen[e.ID] = true
		}
	})
}
