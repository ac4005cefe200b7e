package redisprobe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
	"spyglass/internal/storage"
	"spyglass/internal/storage/memory"
)

func newTestHook(t *testing.T, cfg Config) (*Hook, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	c, err := collector.New(collector.Config{Repository: store})
	if err != nil {
		t.Fatalf("New collector: %v", err)
	}
	cfg.Collector = c
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New hook: %v", err)
	}
	return h, store
}

func listKind(t *testing.T, h *Hook, store *memory.Store, kind entry.Kind) []entry.Entry {
	t.Helper()
	ctx := context.Background()
	if err := h.collector.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	entries, err := store.List(ctx, storage.Query{Kind: kind})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return entries
}

func TestProcessHookRecordsCommand(t *testing.T) {
	h, store := newTestHook(t, Config{Store: "sessions"})

	process := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error {
		return nil
	})
	cmd := redis.NewStringCmd(context.Background(), "GET", "session:abc")
	if err := process(context.Background(), cmd); err != nil {
		t.Fatalf("process: %v", err)
	}

	entries := listKind(t, h, store, entry.KindKeyValue)
	if len(entries) != 1 {
		t.Fatalf("expected 1 kv_op entry, got %d", len(entries))
	}
	got := entries[0].Payload.(entry.KeyValuePayload)
	if got.Op != "get" {
		t.Errorf("op: got %q", got.Op)
	}
	if got.Key != "session:abc" {
		t.Errorf("key: got %q", got.Key)
	}
	if got.Store != "sessions" {
		t.Errorf("store: got %q", got.Store)
	}
	if got.Miss {
		t.Error("unexpected miss on successful command")
	}
}

func TestProcessHookMarksMiss(t *testing.T) {
	h, store := newTestHook(t, Config{})

	process := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error {
		return redis.Nil
	})
	cmd := redis.NewStringCmd(context.Background(), "GET", "absent")
	if err := process(context.Background(), cmd); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil to propagate, got %v", err)
	}

	entries := listKind(t, h, store, entry.KindKeyValue)
	if len(entries) != 1 {
		t.Fatalf("expected 1 kv_op entry, got %d", len(entries))
	}
	if !entries[0].Payload.(entry.KeyValuePayload).Miss {
		t.Error("expected miss marking")
	}
}

func TestProcessPipelineHookRecordsEachCommand(t *testing.T) {
	h, store := newTestHook(t, Config{})

	process := h.ProcessPipelineHook(func(ctx context.Context, cmds []redis.Cmder) error {
		return nil
	})
	cmds := []redis.Cmder{
		redis.NewStringCmd(context.Background(), "SET", "a", "1"),
		redis.NewStringCmd(context.Background(), "SET", "b", "2"),
		redis.NewIntCmd(context.Background(), "DEL", "c"),
	}
	if err := process(context.Background(), cmds); err != nil {
		t.Fatalf("process: %v", err)
	}

	entries := listKind(t, h, store, entry.KindKeyValue)
	if len(entries) != 3 {
		t.Fatalf("expected 3 kv_op entries, got %d", len(entries))
	}
	keys := map[string]bool{}
	for _, e := range entries {
		keys[e.Payload.(entry.KeyValuePayload).Key] = true
	}
	for _, want := range []string{"a", "b", "c"} {
		if !keys[want] {
			t.Errorf("missing key %q", want)
		}
	}
}

func TestCacheOpsRecordCacheEntries(t *testing.T) {
	h, store := newTestHook(t, Config{CacheOps: true})

	hit := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return nil })
	miss := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return redis.Nil })

	hit(context.Background(), redis.NewStringCmd(context.Background(), "GET", "user:1"))
	miss(context.Background(), redis.NewStringCmd(context.Background(), "GET", "user:2"))
	hit(context.Background(), redis.NewStatusCmd(context.Background(), "SET", "user:3", "x"))
	hit(context.Background(), redis.NewIntCmd(context.Background(), "DEL", "user:4"))
	hit(context.Background(), redis.NewIntCmd(context.Background(), "INCR", "counter"))

	cacheEntries := listKind(t, h, store, entry.KindCache)
	if len(cacheEntries) != 4 {
		t.Fatalf("expected 4 cache entries (INCR is not cache-shaped), got %d", len(cacheEntries))
	}
	ops := map[string]string{}
	for _, e := range cacheEntries {
		p := e.Payload.(entry.CachePayload)
		ops[p.Key] = p.Op
	}
	want := map[string]string{
		"user:1": "hit",
		"user:2": "miss",
		"user:3": "set",
		"user:4": "forget",
	}
	for key, op := range want {
		if ops[key] != op {
			t.Errorf("key %s: got op %q, want %q", key, ops[key], op)
		}
	}

	kvEntries := listKind(t, h, store, entry.KindKeyValue)
	if len(kvEntries) != 5 {
		t.Errorf("expected all 5 commands as kv_op entries, got %d", len(kvEntries))
	}
}

func TestCacheOpsOffByDefault(t *testing.T) {
	h, store := newTestHook(t, Config{})

	process := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return nil })
	process(context.Background(), redis.NewStringCmd(context.Background(), "GET", "user:1"))

	if got := listKind(t, h, store, entry.KindCache); len(got) != 0 {
		t.Errorf("expected no cache entries, got %d", len(got))
	}
}

func TestRecordMeasuresDuration(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		return time.Unix(1700000000, 0).Add(time.Duration(calls) * 40 * time.Millisecond)
	}
	h, store := newTestHook(t, Config{Now: clock})

	process := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return nil })
	process(context.Background(), redis.NewStringCmd(context.Background(), "GET", "k"))

	entries := listKind(t, h, store, entry.KindKeyValue)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].Payload.(entry.KeyValuePayload).DurationMS; got != 40 {
		t.Errorf("duration: got %v, want 40", got)
	}
}

func TestCommandKeyWithoutKey(t *testing.T) {
	h, store := newTestHook(t, Config{})

	process := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return nil })
	process(context.Background(), redis.NewStatusCmd(context.Background(), "PING"))

	entries := listKind(t, h, store, entry.KindKeyValue)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0].Payload.(entry.KeyValuePayload)
	if got.Op != "ping" || got.Key != "" {
		t.Errorf("got op %q key %q", got.Op, got.Key)
	}
}

func TestHookPropagatesCorrelationID(t *testing.T) {
	h, store := newTestHook(t, Config{})

	process := h.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error { return nil })
	ctx := entry.ContextWithCorrelationID(context.Background(), "req-8")
	process(ctx, redis.NewStringCmd(ctx, "GET", "k"))

	entries := listKind(t, h, store, entry.KindKeyValue)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].CorrelationID != "req-8" {
		t.Errorf("correlation: got %q", entries[0].CorrelationID)
	}
}

func TestNewRequiresCollector(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoCollector) {
		t.Fatalf("expected ErrNoCollector, got %v", err)
	}
}
