// Package tags derives free-form labels from saved entries so the
// interesting ones (failures, slow operations, denied checks) can be
// found without knowing their kind-specific fields.
package tags

import (
	"context"
	"fmt"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
	"spyglass/internal/storage"
)

// slowRequestMS is the request duration at which the slow label kicks
// in. Queries carry their own Slow flag, set by whoever measured them.
const slowRequestMS = 1000

// Auto is the default tagging collaborator. It is best-effort: the
// collector logs and ignores its errors.
type Auto struct {
	repo storage.Repository
}

var _ collector.Tagger = (*Auto)(nil)

// NewAuto creates a tagger persisting through repo.
func NewAuto(repo storage.Repository) *Auto {
	return &Auto{repo: repo}
}

// AutoTag derives labels for a saved entry and attaches them.
func (a *Auto) AutoTag(ctx context.Context, e entry.Entry) error {
	if !e.Saved() {
		return fmt.Errorf("auto tag: entry has no id")
	}
	labels := derive(e)
	if len(labels) == 0 {
		return nil
	}
	if err := a.repo.AddTags(ctx, e.ID, labels); err != nil {
		return fmt.Errorf("attach tags: %w", err)
	}
	return nil
}

// derive maps one entry to its labels. Unremarkable entries get none.
func derive(e entry.Entry) []string {
	switch p := e.Payload.(type) {
	case entry.RequestPayload:
		var out []string
		if p.StatusCode >= 400 {
			out = append(out, fmt.Sprintf("status:%d", p.StatusCode))
		}
		if p.DurationMS >= slowRequestMS {
			out = append(out, "slow")
		}
		return out
	case entry.ClientRequestPayload:
		if p.StatusCode >= 400 {
			return []string{fmt.Sprintf("status:%d", p.StatusCode)}
		}
	case entry.QueryPayload:
		if p.Slow {
			return []string{"slow"}
		}
	case entry.ExceptionPayload:
		if !p.Handled {
			return []string{"unhandled"}
		}
	case entry.LogPayload:
		if p.Severity == entry.SeverityError || p.Severity == entry.SeverityWarn {
			return []string{"severity:" + string(p.Severity)}
		}
	case entry.JobPayload:
		var out []string
		if p.Queue != "" {
			out = append(out, "queue:"+p.Queue)
		}
		if p.Status == "failed" {
			out = append(out, "failed")
		}
		return out
	case entry.SchedulePayload:
		if p.Status == "error" {
			return []string{"failed"}
		}
	case entry.CommandPayload:
		if p.Exit != 0 {
			return []string{"failed"}
		}
	case entry.AuthCheckPayload:
		if !p.Allowed {
			return []string{"denied"}
		}
	case entry.BatchPayload:
		if p.Failed > 0 {
			return []string{"failed"}
		}
	}
	return nil
}
