package redis

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"spyglass/internal/entry"
	"spyglass/internal/storage"
	"spyglass/internal/storage/storagetest"

	goredis "github.com/redis/go-redis/v9"
)

// These tests need a live server; point SPYGLASS_TEST_REDIS at one
// (e.g. localhost:6379) to enable them.

var storeSeq atomic.Int64

func newTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("SPYGLASS_TEST_REDIS")
	if addr == "" {
		t.Skip("SPYGLASS_TEST_REDIS not set")
	}

	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping %s: %v", addr, err)
	}

	prefix := fmt.Sprintf("spyglass_test:%d:%d", os.Getpid(), storeSeq.Add(1))
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+":*", 0).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewStore(client, prefix)
}

func TestStoreConformance(t *testing.T) {
	storagetest.TestRepository(t, func(t *testing.T) storage.Repository {
		return newTestStore(t)
	})
}

func TestStorePrefixesIsolate(t *testing.T) {
	ctx := context.Background()
	a := newTestStore(t)
	b := newTestStore(t)

	saved, err := a.Save(ctx, entry.New(entry.EventPayload{Name: "only in a"}, time.Now()))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := b.Find(ctx, saved.ID); err == nil {
		t.Fatal("entry saved under one prefix is visible under another")
	}
	got, err := b.List(ctx, storage.Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(got))
	}
}
