// Package schedprobe observes scheduler job runs through gocron event
// listeners, recording each completed run as a schedule entry.
//
// Attach the listeners when registering a job:
//
//	scheduler.NewJob(
//		gocron.DurationJob(time.Hour),
//		gocron.NewTask(rotate),
//		gocron.WithName("rotate"),
//		gocron.WithEventListeners(p.Listeners("every 1h")...),
//	)
//
// or apply them to every job on a scheduler with
// gocron.WithGlobalJobOptions.
package schedprobe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// ErrNoCollector is returned when a Probe is built without a collector.
var ErrNoCollector = errors.New("schedprobe: collector is required")

// Config configures a Probe. Collector is required.
type Config struct {
	Collector *collector.Collector

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Probe records job runs. One Probe can serve any number of jobs; run
// start times are tracked per job id. Overlapping runs of the same job
// share one slot, so their durations are approximate.
type Probe struct {
	collector *collector.Collector
	now       func() time.Time

	mu     sync.Mutex
	starts map[uuid.UUID]time.Time
}

// New creates a Probe.
func New(cfg Config) (*Probe, error) {
	if cfg.Collector == nil {
		return nil, ErrNoCollector
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Probe{
		collector: cfg.Collector,
		now:       cfg.Now,
		starts:    make(map[uuid.UUID]time.Time),
	}, nil
}

// Listeners returns the event listeners that record runs of one job.
// The schedule text labels the entries ("every 1h", "0 3 * * *"); pass
// "" when there is no meaningful label.
func (p *Probe) Listeners(schedule string) []gocron.EventListener {
	return []gocron.EventListener{
		gocron.BeforeJobRuns(p.beforeRun),
		gocron.AfterJobRuns(func(jobID uuid.UUID, jobName string) {
			p.finish(jobID, jobName, schedule, nil)
		}),
		gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
			p.finish(jobID, jobName, schedule, err)
		}),
	}
}

func (p *Probe) beforeRun(jobID uuid.UUID, jobName string) {
	p.mu.Lock()
	p.starts[jobID] = p.now()
	p.mu.Unlock()
}

func (p *Probe) finish(jobID uuid.UUID, jobName, schedule string, err error) {
	p.mu.Lock()
	start, started := p.starts[jobID]
	delete(p.starts, jobID)
	p.mu.Unlock()

	payload := entry.SchedulePayload{
		Task:     jobName,
		Schedule: schedule,
		Status:   "ok",
	}
	if err != nil {
		payload.Status = "error"
	}
	if started {
		payload.DurationMS = float64(p.now().Sub(start)) / float64(time.Millisecond)
	}

	// Listener callbacks carry no context; runs are not correlated.
	p.collector.Collect(context.Background(), payload)
}
