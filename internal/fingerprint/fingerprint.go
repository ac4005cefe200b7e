// Package fingerprint computes family hashes: short deterministic
// digests that group recurring similar entries (the same exception, the
// same slow query shape, the same failing command) so they collapse
// into one family instead of flooding the view.
//
// FamilyHash is a pure function of one entry's content. It is used for
// grouping only, never for identity or any trust decision, so a 64-bit
// digest truncated to 16 hex characters is wide enough.
package fingerprint

import (
	"fmt"

	"spyglass/internal/entry"

	"github.com/spaolacci/murmur3"
)

// FamilyHash maps an entry to its grouping fingerprint. The boolean is
// false for kinds without a grouping rule (plain requests, cache ops,
// domain events, ...) and for log entries below warn severity.
//
// Two entries of the same kind whose normalized projections are equal
// always produce equal fingerprints.
func FamilyHash(e entry.Entry) (string, bool) {
	switch p := e.Payload.(type) {
	case entry.ExceptionPayload:
		file, line := FirstFrame(p.Trace)
		return digest(p.Class, NormalizeMessage(p.Message), file, line), true
	case entry.QueryPayload:
		return digest(NormalizeQuery(p.SQL), p.Source), true
	case entry.LogPayload:
		if p.Severity != entry.SeverityError && p.Severity != entry.SeverityWarn {
			return "", false
		}
		return digest(string(p.Severity), p.Context, NormalizeMessage(p.Message)), true
	case entry.CommandPayload:
		// Arguments are excluded so the same command groups across
		// invocations.
		return digest(p.Command, p.Handler), true
	case entry.AuthCheckPayload:
		return digest(p.Check, p.Action, NormalizeSubject(p.Subject)), true
	case entry.BatchPayload:
		// Item counts and outcome are excluded.
		return digest(p.Name, p.Op), true
	case entry.JobPayload:
		return digest(p.Name, p.Queue), true
	case entry.SchedulePayload:
		return digest(p.Task, p.Schedule), true
	default:
		return "", false
	}
}

// digest hashes the parts, joined with a separator that cannot survive
// normalization, to 16 lowercase hex characters.
func digest(parts ...string) string {
	h := murmur3.New64()
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(part))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
