package entry

import (
	"context"
	"testing"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := CorrelationIDFromContext(ctx); got != "" {
		t.Errorf("expected empty id on bare context, got %q", got)
	}

	ctx = ContextWithCorrelationID(ctx, "req-42")
	if got := CorrelationIDFromContext(ctx); got != "req-42" {
		t.Errorf("expected req-42, got %q", got)
	}

	// Inner scopes override outer ones.
	inner := ContextWithCorrelationID(ctx, "job-7")
	if got := CorrelationIDFromContext(inner); got != "job-7" {
		t.Errorf("expected job-7, got %q", got)
	}
	if got := CorrelationIDFromContext(ctx); got != "req-42" {
		t.Errorf("outer context changed: got %q", got)
	}
}
