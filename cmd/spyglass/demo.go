package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
	"spyglass/internal/probe/synthetic"
	"spyglass/internal/storage"
	"spyglass/internal/storage/memory"
	"spyglass/internal/tags"
)

// runDemo drives the full pipeline against an in-memory store with
// synthetic traffic, then prints what was recorded.
func runDemo(ctx context.Context, logger *slog.Logger, rate float64) error {
	store := memory.NewStore()
	c, err := collector.New(collector.Config{
		Repository: store,
		Tagger:     tags.NewAuto(store),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	c.Start(ctx)

	gen, err := synthetic.New(synthetic.Config{
		Collector: c,
		Rate:      rate,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	logger.Info("demo running, stop with ctrl-c", "rate", rate)
	if err := gen.Run(ctx); err != nil {
		return err
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Shutdown(shutCtx); err != nil {
		return err
	}
	return printSummary(shutCtx, store)
}

// printSummary renders per-kind counts and the most frequent families.
func printSummary(ctx context.Context, store *memory.Store) error {
	entries, err := store.List(ctx, storage.Query{})
	if err != nil {
		return err
	}

	fmt.Printf("\nrecorded %d entries\n\n", len(entries))

	counts := map[entry.Kind]int{}
	type family struct {
		kind   entry.Kind
		count  int
		sample string
	}
	families := map[string]*family{}
	for _, e := range entries {
		counts[e.Kind]++
		if e.FamilyHash == "" {
			continue
		}
		f, ok := families[e.FamilyHash]
		if !ok {
			f = &family{kind: e.Kind, sample: sampleLine(e)}
			families[e.FamilyHash] = f
		}
		f.count++
	}

	fmt.Println("entries by kind")
	for _, k := range entry.Kinds() {
		if counts[k] > 0 {
			fmt.Printf("  %6d  %s\n", counts[k], k)
		}
	}

	if len(families) == 0 {
		return nil
	}

	list := make([]*family, 0, len(families))
	for _, f := range families {
		list = append(list, f)
	}
	slices.SortFunc(list, func(a, b *family) int {
		return cmp.Compare(b.count, a.count)
	})

	fmt.Println("\ntop families")
	for i, f := range list {
		if i == 10 {
			break
		}
		fmt.Printf("  %6d  %-12s %s\n", f.count, f.kind, f.sample)
	}
	return nil
}

// sampleLine renders one representative line for a family.
func sampleLine(e entry.Entry) string {
	switch p := e.Payload.(type) {
	case entry.LogPayload:
		return fmt.Sprintf("%s: %s", p.Severity, p.Message)
	case entry.QueryPayload:
		return p.SQL
	case entry.ExceptionPayload:
		return fmt.Sprintf("%s: %s", p.Class, p.Message)
	case entry.JobPayload:
		return fmt.Sprintf("job %s on %s", p.Name, p.Queue)
	case entry.SchedulePayload:
		return fmt.Sprintf("task %s (%s)", p.Task, p.Schedule)
	case entry.CommandPayload:
		return "command " + p.Command
	case entry.AuthCheckPayload:
		return fmt.Sprintf("%s %s on %s", p.Check, p.Action, p.Subject)
	case entry.BatchPayload:
		return fmt.Sprintf("batch %s (%s)", p.Name, p.Op)
	default:
		return string(e.Kind)
	}
}
