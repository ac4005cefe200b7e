package schedprobe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
	"spyglass/internal/storage"
	"spyglass/internal/storage/memory"
)

func newTestProbe(t *testing.T, cfg Config) (*Probe, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	c, err := collector.New(collector.Config{Repository: store})
	if err != nil {
		t.Fatalf("New collector: %v", err)
	}
	cfg.Collector = c
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New probe: %v", err)
	}
	return p, store
}

// waitForSchedule polls until the store holds at least one schedule
// entry, flushing the collector between polls.
func waitForSchedule(t *testing.T, p *Probe, store *memory.Store, timeout time.Duration) []entry.Entry {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := p.collector.Flush(context.Background()); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		entries, err := store.List(context.Background(), storage.Query{Kind: entry.KindSchedule})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) > 0 {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a schedule entry")
	return nil
}

func TestListenersRecordSuccessfulRun(t *testing.T) {
	p, store := newTestProbe(t, Config{})

	s, err := gocron.NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	defer s.Shutdown()

	_, err = s.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {}),
		gocron.WithName("rotate-chunks"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithEventListeners(p.Listeners("every 1h")...),
	)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	s.Start()

	entries := waitForSchedule(t, p, store, 2*time.Second)
	got := entries[0].Payload.(entry.SchedulePayload)
	if got.Task != "rotate-chunks" {
		t.Errorf("task: got %q", got.Task)
	}
	if got.Schedule != "every 1h" {
		t.Errorf("schedule: got %q", got.Schedule)
	}
	if got.Status != "ok" {
		t.Errorf("status: got %q", got.Status)
	}
}

func TestListenersRecordFailedRun(t *testing.T) {
	p, store := newTestProbe(t, Config{})

	s, err := gocron.NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	defer s.Shutdown()

	_, err = s.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() error { return errors.New("backing store offline") }),
		gocron.WithName("backup"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithEventListeners(p.Listeners("0 3 * * *")...),
	)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	s.Start()

	entries := waitForSchedule(t, p, store, 2*time.Second)
	got := entries[0].Payload.(entry.SchedulePayload)
	if got.Task != "backup" {
		t.Errorf("task: got %q", got.Task)
	}
	if got.Status != "error" {
		t.Errorf("status: got %q", got.Status)
	}
}

func TestFinishMeasuresDuration(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		return time.Unix(1700000000, 0).Add(time.Duration(calls) * 30 * time.Millisecond)
	}
	p, store := newTestProbe(t, Config{Now: clock})

	s, err := gocron.NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	defer s.Shutdown()

	_, err = s.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {}),
		gocron.WithName("sweep"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithEventListeners(p.Listeners("")...),
	)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	s.Start()

	entries := waitForSchedule(t, p, store, 2*time.Second)
	got := entries[0].Payload.(entry.SchedulePayload)
	if got.DurationMS <= 0 {
		t.Errorf("duration: got %v, want > 0", got.DurationMS)
	}
}

func TestNewRequiresCollector(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoCollector) {
		t.Fatalf("expected ErrNoCollector, got %v", err)
	}
}
