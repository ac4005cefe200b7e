// Package synthetic generates a stream of plausible entries of every
// kind, for demos and for exercising the full pipeline without an
// instrumented application.
//
// Generation is weighted toward the kinds a busy web application
// produces most (logs, requests, queries). Requests start correlation
// chains that later entries sometimes join, so correlated clusters and
// recurring families appear the way they would in live traffic.
package synthetic

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/time/rate"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
	"spyglass/internal/logging"
)

// ErrNoCollector is returned by New when no collector is provided.
var ErrNoCollector = errors.New("synthetic: collector is required")

// DefaultRate is the default emission rate in entries per second.
const DefaultRate = 20.0

// Config configures a Generator. Collector is required.
type Config struct {
	Collector *collector.Collector

	// Rate is the emission rate in entries per second. Defaults to
	// DefaultRate.
	Rate float64

	Logger *slog.Logger
}

// Generator emits random entries. Not safe for concurrent use; Run
// drives it from a single goroutine.
type Generator struct {
	collector *collector.Collector
	limiter   *rate.Limiter
	rng       *rand.Rand
	logger    *slog.Logger

	// generators holds one payload generator per kind.
	generators []payloadGen
	// weights holds cumulative weights for selection:
	// weights[i] = sum of generator weights 0..i.
	weights     []int
	totalWeight int

	// lastCorrelation is the id of the most recent synthetic request,
	// which later entries sometimes join.
	lastCorrelation string
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Collector == nil {
		return nil, ErrNoCollector
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}

	g := &Generator{
		collector: cfg.Collector,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), 1),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:    logging.Default(cfg.Logger).With("component", "synthetic"),
	}
	g.generators = newGenerators()
	total := 0
	for _, gen := range g.generators {
		total += gen.weight
		g.weights = append(g.weights, total)
	}
	g.totalWeight = total
	return g, nil
}

// Run emits entries until ctx is cancelled. Returns nil on normal
// cancellation.
func (g *Generator) Run(ctx context.Context) error {
	g.logger.Info("synthetic generator starting", "rate", float64(g.limiter.Limit()))
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			g.logger.Info("synthetic generator stopping")
			return nil
		}
		g.emit(ctx)
	}
}

// emit generates and collects one entry.
func (g *Generator) emit(ctx context.Context) {
	gen := g.selectGenerator()
	payload, opts := gen.generate(g)
	g.collector.Collect(ctx, payload, opts...)
}

// selectGenerator returns a randomly selected generator based on
// weights.
func (g *Generator) selectGenerator() payloadGen {
	n := g.rng.IntN(g.totalWeight)
	for i, w := range g.weights {
		if n < w {
			return g.generators[i]
		}
	}
	return g.generators[len(g.generators)-1]
}

// correlationOpts starts or joins a correlation chain. Requests always
// start a fresh chain; other kinds join the latest one about half the
// time.
func (g *Generator) correlationOpts(fresh bool) []collector.Option {
	if fresh {
		g.lastCorrelation = entry.NewCorrelationID()
		return []collector.Option{collector.WithCorrelationID(g.lastCorrelation)}
	}
	if g.lastCorrelation != "" && g.rng.IntN(2) == 0 {
		return []collector.Option{collector.WithCorrelationID(g.lastCorrelation)}
	}
	return nil
}

// jitterMS returns a duration in milliseconds up to base, with an
// occasional slow outlier.
func (g *Generator) jitterMS(base float64) float64 {
	ms := g.rng.Float64() * base
	if g.rng.IntN(20) == 0 {
		ms *= 15
	}
	return float64(int(ms*100)) / 100
}
