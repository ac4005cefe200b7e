package synthetic

import (
	"context"
	"errors"
	"testing"
	"time"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
	"spyglass/internal/storage"
	"spyglass/internal/storage/memory"
)

func newTestGenerator(t *testing.T, rate float64) (*Generator, *collector.Collector, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	c, err := collector.New(collector.Config{Repository: store})
	if err != nil {
		t.Fatalf("New collector: %v", err)
	}
	g, err := New(Config{Collector: c, Rate: rate})
	if err != nil {
		t.Fatalf("New generator: %v", err)
	}
	return g, c, store
}

func flushAndList(t *testing.T, c *collector.Collector, store *memory.Store) []entry.Entry {
	t.Helper()
	ctx := context.Background()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	entries, err := store.List(ctx, storage.Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return entries
}

func TestGeneratorsCoverEveryKind(t *testing.T) {
	g, c, store := newTestGenerator(t, DefaultRate)
	ctx := context.Background()

	got := map[entry.Kind]bool{}
	for _, gen := range g.generators {
		payload, opts := gen.generate(g)
		if !payload.Kind().Valid() {
			t.Errorf("generator produced invalid kind %q", payload.Kind())
		}
		got[payload.Kind()] = true
		c.Collect(ctx, payload, opts...)
	}

	for _, k := range entry.Kinds() {
		if !got[k] {
			t.Errorf("no generator produces kind %q", k)
		}
	}

	entries := flushAndList(t, c, store)
	if len(entries) != len(g.generators) {
		t.Fatalf("stored %d entries, want %d", len(entries), len(g.generators))
	}
}

func TestWeightsAreCumulative(t *testing.T) {
	g, _, _ := newTestGenerator(t, DefaultRate)

	if len(g.weights) != len(g.generators) {
		t.Fatalf("got %d weights for %d generators", len(g.weights), len(g.generators))
	}
	prev := 0
	for i, w := range g.weights {
		if w <= prev {
			t.Fatalf("weights[%d] = %d is not greater than weights[%d] = %d", i, w, i-1, prev)
		}
		prev = w
	}
	if g.totalWeight != prev {
		t.Fatalf("totalWeight = %d, want %d", g.totalWeight, prev)
	}
}

func TestEmitCollectsOneEntry(t *testing.T) {
	g, c, store := newTestGenerator(t, DefaultRate)

	g.emit(context.Background())

	entries := flushAndList(t, c, store)
	if len(entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(entries))
	}
	if !entries[0].Kind.Valid() {
		t.Errorf("stored entry has invalid kind %q", entries[0].Kind)
	}
}

func TestRequestsStartChainsOthersJoin(t *testing.T) {
	g, c, store := newTestGenerator(t, DefaultRate)
	ctx := context.Background()

	opts := g.correlationOpts(true)
	if len(opts) != 1 {
		t.Fatalf("fresh chain: got %d options, want 1", len(opts))
	}
	if g.lastCorrelation == "" {
		t.Fatal("fresh chain did not record a correlation id")
	}
	first := g.lastCorrelation

	// Joining is probabilistic, so draw until it happens.
	joined := false
	for i := 0; i < 100; i++ {
		if opts := g.correlationOpts(false); len(opts) == 1 {
			c.Collect(ctx, entry.LogPayload{Severity: entry.SeverityInfo, Message: "joined"}, opts...)
			joined = true
			break
		}
	}
	if !joined {
		t.Fatal("no draw joined the chain")
	}

	entries := flushAndList(t, c, store)
	if len(entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(entries))
	}
	if entries[0].CorrelationID != first {
		t.Errorf("joined entry has correlation id %q, want %q", entries[0].CorrelationID, first)
	}
	if g.lastCorrelation != first {
		t.Errorf("joining moved the chain id to %q", g.lastCorrelation)
	}
}

func TestJitterMSBounds(t *testing.T) {
	g, _, _ := newTestGenerator(t, DefaultRate)

	for i := 0; i < 200; i++ {
		ms := g.jitterMS(100)
		if ms < 0 || ms > 1500 {
			t.Fatalf("jitterMS(100) = %v, want within [0, 1500]", ms)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	g, c, store := newTestGenerator(t, 500)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := flushAndList(t, c, store)
	if len(entries) == 0 {
		t.Fatal("Run emitted no entries")
	}
}

func TestNewRequiresCollector(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoCollector) {
		t.Fatalf("got %v, want ErrNoCollector", err)
	}
}
