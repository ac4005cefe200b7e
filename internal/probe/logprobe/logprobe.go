// Package logprobe captures application log records as log entries.
//
// Handler wraps an existing slog.Handler: every record passes through to
// the wrapped handler unchanged, and records at or above a minimum level
// are additionally collected. Install it at logger construction time:
//
//	base := slog.NewJSONHandler(os.Stderr, nil)
//	logger := slog.New(logprobe.New(base, c, slog.LevelInfo))
//
// The collector's own logger must not be built on this handler, or the
// collector's log output would feed back into its own buffer. Give the
// collector the unwrapped base handler instead.
package logprobe

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// Handler forwards log records to a collector and to the wrapped
// handler. It implements slog.Handler.
type Handler struct {
	inner     slog.Handler
	collector *collector.Collector
	min       slog.Level
	attrs     []slog.Attr
	groups    []string
}

var _ slog.Handler = (*Handler)(nil)

// New wraps inner so that records at or above min are also collected.
// A nil inner is allowed; records are then only collected.
func New(inner slog.Handler, c *collector.Collector, min slog.Level) *Handler {
	return &Handler{
		inner:     inner,
		collector: c,
		min:       min,
	}
}

// Enabled reports whether either the collector or the wrapped handler
// wants records at the given level.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.min {
		return true
	}
	return h.inner != nil && h.inner.Enabled(ctx, level)
}

// Handle collects the record if it clears the minimum level, then
// forwards it to the wrapped handler.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= h.min {
		h.collect(ctx, record)
	}
	if h.inner != nil && h.inner.Enabled(ctx, record.Level) {
		return h.inner.Handle(ctx, record)
	}
	return nil
}

// WithAttrs returns a derived handler with the given attributes
// appended. The derived handler shares the collector and level.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := h.derive()
	derived.attrs = append(derived.attrs, attrs...)
	if h.inner != nil {
		derived.inner = h.inner.WithAttrs(attrs)
	}
	return derived
}

// WithGroup returns a derived handler with the given group name
// appended. Open groups become the entry's Context label.
func (h *Handler) WithGroup(name string) slog.Handler {
	derived := h.derive()
	derived.groups = append(derived.groups, name)
	if h.inner != nil {
		derived.inner = h.inner.WithGroup(name)
	}
	return derived
}

func (h *Handler) derive() *Handler {
	return &Handler{
		inner:     h.inner,
		collector: h.collector,
		min:       h.min,
		attrs:     slices.Clone(h.attrs),
		groups:    slices.Clone(h.groups),
	}
}

func (h *Handler) collect(ctx context.Context, record slog.Record) {
	attrs := make(map[string]string, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		attrs[attr.Key] = attr.Value.String()
	}
	record.Attrs(func(attr slog.Attr) bool {
		attrs[attr.Key] = attr.Value.String()
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	payload := entry.LogPayload{
		Severity: severityFor(record.Level),
		Message:  record.Message,
		Context:  strings.Join(h.groups, "."),
		Attrs:    attrs,
	}

	var opts []collector.Option
	if !record.Time.IsZero() {
		opts = append(opts, collector.WithTimestamp(record.Time))
	}
	if id := entry.CorrelationIDFromContext(ctx); id != "" {
		opts = append(opts, collector.WithCorrelationID(id))
	}
	h.collector.Collect(ctx, payload, opts...)
}

// severityFor maps slog levels onto entry severities. Levels between
// the named slog constants round down; anything below debug is trace.
func severityFor(level slog.Level) entry.Severity {
	switch {
	case level >= slog.LevelError:
		return entry.SeverityError
	case level >= slog.LevelWarn:
		return entry.SeverityWarn
	case level >= slog.LevelInfo:
		return entry.SeverityInfo
	case level >= slog.LevelDebug:
		return entry.SeverityDebug
	default:
		return entry.SeverityTrace
	}
}
