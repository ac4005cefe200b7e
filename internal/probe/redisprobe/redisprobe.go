// Package redisprobe observes redis commands through a client hook,
// recording each command as a kv_op entry.
//
// Install with client.AddHook. When CacheOps is set, GET/SET-shaped
// commands are additionally recorded as cache entries (hit, miss, set,
// forget), for applications that use redis as their cache.
//
// Do not install the hook on the client backing a redis entry store:
// every flush would record its own writes and feed them back into the
// buffer.
package redisprobe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// ErrNoCollector is returned when a Hook is built without a collector.
var ErrNoCollector = errors.New("redisprobe: collector is required")

// Config configures a Hook. Collector is required.
type Config struct {
	Collector *collector.Collector

	// Store labels the client in recorded entries, so commands against
	// different redis deployments group separately.
	Store string

	// CacheOps additionally records GET/SET-shaped commands as cache
	// entries.
	CacheOps bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Hook records commands processed by a go-redis client. It implements
// redis.Hook.
type Hook struct {
	collector *collector.Collector
	store     string
	cacheOps  bool
	now       func() time.Time
}

var _ redis.Hook = (*Hook)(nil)

// New creates a Hook.
func New(cfg Config) (*Hook, error) {
	if cfg.Collector == nil {
		return nil, ErrNoCollector
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hook{
		collector: cfg.Collector,
		store:     cfg.Store,
		cacheOps:  cfg.CacheOps,
		now:       cfg.Now,
	}, nil
}

// DialHook passes connection establishment through unchanged.
func (h *Hook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook records each command around its execution.
func (h *Hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := h.now()
		err := next(ctx, cmd)
		h.record(ctx, cmd, h.now().Sub(start), err)
		return err
	}
}

// ProcessPipelineHook records each command in the pipeline. The
// measured duration is the whole round trip; per-command timing is not
// observable inside a pipeline.
func (h *Hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := h.now()
		err := next(ctx, cmds)
		elapsed := h.now().Sub(start)
		for _, cmd := range cmds {
			h.record(ctx, cmd, elapsed, cmd.Err())
		}
		return err
	}
}

func (h *Hook) record(ctx context.Context, cmd redis.Cmder, elapsed time.Duration, err error) {
	op := strings.ToLower(cmd.Name())
	if op == "" {
		return
	}
	key := commandKey(cmd)
	miss := errors.Is(err, redis.Nil)

	var opts []collector.Option
	if id := entry.CorrelationIDFromContext(ctx); id != "" {
		opts = append(opts, collector.WithCorrelationID(id))
	}

	h.collector.Collect(ctx, entry.KeyValuePayload{
		Op:         op,
		Key:        key,
		Store:      h.store,
		DurationMS: float64(elapsed) / float64(time.Millisecond),
		Miss:       miss,
	}, opts...)

	if h.cacheOps {
		if payload, ok := cachePayload(op, key, miss); ok {
			h.collector.Collect(ctx, payload, opts...)
		}
	}
}

// commandKey extracts the key argument, the first argument after the
// command name. Commands without a key (PING, INFO) yield "".
func commandKey(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	if key, ok := args[1].(string); ok {
		return key
	}
	return fmt.Sprint(args[1])
}

// cachePayload maps GET/SET-shaped commands onto cache semantics.
func cachePayload(op, key string, miss bool) (entry.CachePayload, bool) {
	switch op {
	case "get", "getex", "getdel", "mget":
		cacheOp := "hit"
		if miss {
			cacheOp = "miss"
		}
		return entry.CachePayload{Op: cacheOp, Key: key}, true
	case "set", "setex", "setnx", "mset":
		return entry.CachePayload{Op: "set", Key: key}, true
	case "del", "unlink":
		return entry.CachePayload{Op: "forget", Key: key}, true
	}
	return entry.CachePayload{}, false
}
