// Package pruner bounds storage growth by deleting entries older than
// a configured age on a recurring schedule.
package pruner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spyglass/internal/logging"
	"spyglass/internal/storage"

	"github.com/go-co-op/gocron/v2"
)

const (
	// DefaultMaxAge is how long entries are kept.
	DefaultMaxAge = 24 * time.Hour

	// DefaultInterval is the time between sweeps.
	DefaultInterval = 60 * time.Second
)

// ErrNoRepository is returned by New when no repository is configured.
var ErrNoRepository = errors.New("pruner: repository is required")

// Config configures a Pruner. Repository is required.
type Config struct {
	Repository storage.Repository

	MaxAge   time.Duration
	Interval time.Duration

	// Disabled skips scheduling entirely. Sweep can still be called
	// directly.
	Disabled bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Pruner runs age-based retention sweeps against the storage port.
type Pruner struct {
	repo     storage.Repository
	maxAge   time.Duration
	interval time.Duration
	disabled bool
	now      func() time.Time
	logger   *slog.Logger

	scheduler gocron.Scheduler
}

// New creates a Pruner. It does not schedule anything; call Start.
func New(cfg Config) (*Pruner, error) {
	if cfg.Repository == nil {
		return nil, ErrNoRepository
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := logging.Default(cfg.Logger)

	return &Pruner{
		repo:     cfg.Repository,
		maxAge:   cfg.MaxAge,
		interval: cfg.Interval,
		disabled: cfg.Disabled,
		now:      cfg.Now,
		logger:   logger.With("component", "pruner"),
	}, nil
}

// Start schedules sweeps: one immediately, then one per interval.
// No-op when disabled.
func (p *Pruner) Start(ctx context.Context) error {
	if p.disabled {
		p.logger.Info("pruning disabled")
		return nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create prune scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.sweep, ctx),
		gocron.WithName("prune"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule prune job: %w", err)
	}

	p.scheduler = s
	s.Start()
	p.logger.Info("pruning scheduled", "max_age", p.maxAge, "interval", p.interval)
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
// No final sweep runs.
func (p *Pruner) Stop() error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Shutdown()
}

// Sweep deletes everything stamped before now minus MaxAge and returns
// the count. Called by the schedule, and directly by the prune
// command.
func (p *Pruner) Sweep(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.maxAge)
	n, err := p.repo.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		p.logger.Info("pruned entries", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// sweep adapts Sweep for the scheduler: a failed sweep is logged and
// abandoned, the schedule keeps running.
func (p *Pruner) sweep(ctx context.Context) {
	if _, err := p.Sweep(ctx); err != nil {
		p.logger.Error("prune sweep failed", "error", err)
	}
}
