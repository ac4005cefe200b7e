// Package collector buffers incoming entries and persists them in
// batches through the storage port, enriching each saved entry with a
// family hash and tags.
//
// Probes call Collect and never block on storage I/O: entries queue in
// memory and a background loop flushes them on a fixed interval, or
// early when the buffer crosses its size threshold. A failed batch
// save is retried with backoff and, if still failing, requeued for the
// next cycle rather than dropped.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"spyglass/internal/entry"
	"spyglass/internal/fingerprint"
	"spyglass/internal/logging"
	"spyglass/internal/notify"
	"spyglass/internal/storage"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultInterval is the time between automatic flushes.
	DefaultInterval = time.Second

	// DefaultBufferSize is the buffered-entry count that wakes the
	// flush loop early.
	DefaultBufferSize = 100

	// DefaultMaxRetries is the number of SaveBatch attempts per flush.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff scales the pause between save attempts:
	// attempt n is followed by a wait of n times this duration.
	DefaultRetryBackoff = 100 * time.Millisecond

	// enrichWorkers bounds the post-save enrichment fan-out.
	enrichWorkers = 8
)

// ErrNoRepository is returned by New when no repository is configured.
var ErrNoRepository = errors.New("collector: repository is required")

// Tagger attaches labels to a saved entry. Implementations are
// best-effort: a returned error is logged and never affects the save.
type Tagger interface {
	AutoTag(ctx context.Context, e entry.Entry) error
}

// EntryFilter decides whether a single entry is kept. Filters are
// fail-open: a returned error keeps the entry.
type EntryFilter func(ctx context.Context, e entry.Entry) (bool, error)

// BatchFilter may rewrite a batch before it is persisted. Fail-open: a
// returned error keeps the original batch.
type BatchFilter func(ctx context.Context, entries []entry.Entry) ([]entry.Entry, error)

// Config configures a Collector. Repository is required; everything
// else has a usable default.
type Config struct {
	Repository storage.Repository

	// Tagger labels saved entries after enrichment. Optional.
	Tagger Tagger

	// EntryFilter is consulted once per collected entry. Optional.
	EntryFilter EntryFilter

	// BatchFilter is consulted once per flushed batch. Optional.
	BatchFilter BatchFilter

	Interval     time.Duration
	BufferSize   int
	MaxRetries   int
	RetryBackoff time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Status reports whether intake is paused, and since when.
type Status struct {
	Paused   bool
	PausedAt time.Time
	Reason   string
}

// Collector owns the in-memory queue of pending entries.
//
// Concurrency model:
//   - One mutex guards the buffer and the pause state. It is never
//     held across filter callbacks or storage calls.
//   - Flush swaps the buffer for an empty one under the mutex, so an
//     entry collected during an in-flight flush lands in the next
//     batch, never in both.
//   - The background loop is the only caller of Flush in normal
//     operation, but Flush is safe to call concurrently.
type Collector struct {
	repo        storage.Repository
	tagger      Tagger
	entryFilter EntryFilter
	batchFilter BatchFilter

	interval     time.Duration
	bufferSize   int
	maxRetries   int
	retryBackoff time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu          sync.Mutex
	buffer      []entry.Entry
	paused      bool
	pausedAt    time.Time
	pauseReason string

	full *notify.Signal

	lifeMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option adjusts a collected entry before it enters the pipeline.
type Option func(*entry.Entry)

// WithCorrelationID links the entry to a logical operation.
func WithCorrelationID(id string) Option {
	return func(e *entry.Entry) { e.CorrelationID = id }
}

// WithTimestamp overrides the collection-time timestamp, for entries
// that describe something observed earlier (e.g. relayed batches).
func WithTimestamp(ts time.Time) Option {
	return func(e *entry.Entry) { e.Timestamp = ts }
}

// WithTags attaches labels at collection time, ahead of anything the
// tagger adds after save.
func WithTags(tags ...string) Option {
	return func(e *entry.Entry) { e.Tags = append(e.Tags, tags...) }
}

// New creates a Collector. It does not start the flush loop; call
// Start for that, or drive Flush manually.
func New(cfg Config) (*Collector, error) {
	if cfg.Repository == nil {
		return nil, ErrNoRepository
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := logging.Default(cfg.Logger)

	return &Collector{
		repo:         cfg.Repository,
		tagger:       cfg.Tagger,
		entryFilter:  cfg.EntryFilter,
		batchFilter:  cfg.BatchFilter,
		interval:     cfg.Interval,
		bufferSize:   cfg.BufferSize,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		now:          cfg.Now,
		logger:       logger.With("component", "collector"),
		full:         notify.NewSignal(),
	}, nil
}

// Collect queues one entry for the next flush. It never blocks on
// storage: the caller returns as soon as the entry is buffered. While
// paused, entries are silently discarded.
func (c *Collector) Collect(ctx context.Context, p entry.Payload, opts ...Option) {
	if p == nil {
		c.logger.Warn("collect called with nil payload")
		return
	}
	e := entry.New(p, c.now())
	for _, opt := range opts {
		opt(&e)
	}

	if !c.keep(ctx, e) {
		return
	}

	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return
	}
	c.buffer = append(c.buffer, e)
	full := len(c.buffer) >= c.bufferSize
	c.mu.Unlock()

	if full {
		c.full.Notify()
	}
}

// CollectImmediate persists one entry synchronously, bypassing the
// buffer, for entries whose loss is unacceptable (e.g. a fatal
// exception). Unlike the buffered path, storage errors propagate to
// the caller. Returns (nil, nil) when paused or filtered out. The
// returned entry carries its id and, where one is defined, its family
// hash.
func (c *Collector) CollectImmediate(ctx context.Context, p entry.Payload, opts ...Option) (*entry.Entry, error) {
	if p == nil {
		return nil, entry.ErrNoPayload
	}
	e := entry.New(p, c.now())
	for _, opt := range opts {
		opt(&e)
	}

	if !c.keep(ctx, e) {
		return nil, nil
	}
	if c.RecordingStatus().Paused {
		return nil, nil
	}

	saved, err := c.repo.Save(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("save entry: %w", err)
	}
	c.enrich(ctx, &saved)
	return &saved, nil
}

// keep applies the entry filter. Fail-open: filter bugs must never
// suppress the data they were meant to observe.
func (c *Collector) keep(ctx context.Context, e entry.Entry) bool {
	if c.entryFilter == nil {
		return true
	}
	keep, err := c.entryFilter(ctx, e)
	if err != nil {
		c.logger.Warn("entry filter failed, keeping entry",
			"kind", e.Kind, "error", err)
		return true
	}
	return keep
}

// Flush persists everything buffered so far. The buffer swap is
// atomic: entries collected while the save is in flight go to the next
// batch. On exhausted retries the batch is requeued in front of them
// and the error is returned.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	batch = c.filterBatch(ctx, batch)
	if len(batch) == 0 {
		return nil
	}

	saved, err := c.saveWithRetry(ctx, batch)
	if err != nil {
		c.requeue(batch)
		c.logger.Error("flush failed, entries requeued",
			"count", len(batch), "attempts", c.maxRetries, "error", err)
		return fmt.Errorf("flush %d entries: %w", len(batch), err)
	}

	c.enrichAll(ctx, saved)
	return nil
}

func (c *Collector) filterBatch(ctx context.Context, batch []entry.Entry) []entry.Entry {
	if c.batchFilter == nil {
		return batch
	}
	filtered, err := c.batchFilter(ctx, batch)
	if err != nil {
		c.logger.Warn("batch filter failed, keeping original batch",
			"count", len(batch), "error", err)
		return batch
	}
	return filtered
}

func (c *Collector) saveWithRetry(ctx context.Context, batch []entry.Entry) ([]entry.Entry, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		saved, err := c.repo.SaveBatch(ctx, batch)
		if err == nil {
			return saved, nil
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		c.logger.Warn("batch save failed, retrying",
			"attempt", attempt, "count", len(batch), "error", err)
		select {
		case <-time.After(time.Duration(attempt) * c.retryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// requeue puts a failed batch back in front of anything collected
// while the save was in flight, preserving arrival order.
func (c *Collector) requeue(batch []entry.Entry) {
	c.mu.Lock()
	c.buffer = append(batch, c.buffer...)
	c.mu.Unlock()
}

// enrichAll fans enrichment out across saved entries. Each entry is
// independent: one failure never affects the others or the flush.
func (c *Collector) enrichAll(ctx context.Context, saved []entry.Entry) {
	var g errgroup.Group
	g.SetLimit(enrichWorkers)
	for _, e := range saved {
		g.Go(func() error {
			c.enrich(ctx, &e)
			return nil
		})
	}
	_ = g.Wait()
}

// enrich computes and persists the family hash, then hands the entry
// to the tagger. Failures are logged and isolated: the save stands.
func (c *Collector) enrich(ctx context.Context, e *entry.Entry) {
	if hash, ok := fingerprint.FamilyHash(*e); ok {
		if err := c.repo.UpdateFamilyHash(ctx, e.ID, hash); err != nil {
			c.logger.Warn("family hash update failed",
				"id", e.ID, "kind", e.Kind, "error", err)
		} else {
			e.FamilyHash = hash
		}
	}
	if c.tagger != nil {
		if err := c.tagger.AutoTag(ctx, *e); err != nil {
			c.logger.Warn("auto tag failed",
				"id", e.ID, "kind", e.Kind, "error", err)
		}
	}
}

// Pause stops intake. Entries arriving while paused are discarded;
// already-buffered entries still flush normally. Idempotent: pausing
// again keeps the original reason and time.
func (c *Collector) Pause(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.pausedAt = c.now()
	c.pauseReason = reason
	c.logger.Info("collection paused", "reason", reason)
}

// Resume re-enables intake. Idempotent.
func (c *Collector) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	c.pausedAt = time.Time{}
	c.pauseReason = ""
	c.logger.Info("collection resumed")
}

// RecordingStatus reports the current pause state.
func (c *Collector) RecordingStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Paused: c.paused, PausedAt: c.pausedAt, Reason: c.pauseReason}
}

// Pending returns the number of buffered, not-yet-persisted entries.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Start launches the background flush loop. It returns immediately;
// the loop runs until ctx is cancelled or Shutdown is called. Calling
// Start twice is a no-op.
func (c *Collector) Start(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.full.C():
		}
		// Flush logs its own failures; entries stay buffered.
		_ = c.Flush(ctx)
	}
}

// Shutdown stops the flush loop and performs one final synchronous
// flush. Entries that fail even this last flush are dropped and logged
// loudly; that is the one accepted loss.
func (c *Collector) Shutdown(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.lifeMu.Unlock()
	c.wg.Wait()

	if err := c.Flush(ctx); err != nil {
		c.mu.Lock()
		dropped := len(c.buffer)
		c.buffer = nil
		c.mu.Unlock()
		c.logger.Error("final flush failed, dropping buffered entries",
			"dropped", dropped, "error", err)
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}
