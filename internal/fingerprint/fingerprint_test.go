package fingerprint

import (
	"regexp"
	"testing"
	"time"

	"spyglass/internal/entry"
)

var hashShape = regexp.MustCompile(`^[0-9a-f]{16}$`)

func mk(p entry.Payload) entry.Entry {
	return entry.New(p, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestFamilyHashDeterministic(t *testing.T) {
	e := mk(entry.ExceptionPayload{
		Class:   "PaymentError",
		Message: "charge 42 declined",
		Trace:   "    at charge (/srv/api/src/billing/charge.ts:10:5)",
	})

	h1, ok1 := FamilyHash(e)
	h2, ok2 := FamilyHash(e)
	if !ok1 || !ok2 {
		t.Fatal("FamilyHash returned no fingerprint for an exception")
	}
	if h1 != h2 {
		t.Errorf("FamilyHash not deterministic: %q vs %q", h1, h2)
	}
	if !hashShape.MatchString(h1) {
		t.Errorf("FamilyHash %q is not 16 lowercase hex characters", h1)
	}
}

func TestFamilyHashUngroupedKinds(t *testing.T) {
	tests := []struct {
		name    string
		payload entry.Payload
	}{
		{"request", entry.RequestPayload{Method: "GET", Path: "/"}},
		{"cache", entry.CachePayload{Op: "hit", Key: "users:1"}},
		{"event", entry.EventPayload{Name: "OrderShipped"}},
		{"mail", entry.MailPayload{Mailable: "WelcomeMail"}},
		{"view", entry.ViewPayload{Name: "home"}},
		{"dump", entry.DumpPayload{Dump: "nil"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if h, ok := FamilyHash(mk(tt.payload)); ok {
				t.Errorf("FamilyHash(%s) = %q, want none", tt.name, h)
			}
		})
	}
}

func TestFamilyHashLogSeverityGate(t *testing.T) {
	grouped := []entry.Severity{entry.SeverityError, entry.SeverityWarn}
	ungrouped := []entry.Severity{entry.SeverityInfo, entry.SeverityDebug, entry.SeverityTrace}

	for _, sev := range grouped {
		if _, ok := FamilyHash(mk(entry.LogPayload{Severity: sev, Message: "disk full"})); !ok {
			t.Errorf("severity %q: want fingerprint, got none", sev)
		}
	}
	for _, sev := range ungrouped {
		if h, ok := FamilyHash(mk(entry.LogPayload{Severity: sev, Message: "disk full"})); ok {
			t.Errorf("severity %q: want none, got %q", sev, h)
		}
	}
}

func TestFamilyHashException(t *testing.T) {
	trace := "    at charge (/srv/api/src/billing/charge.ts:10:5)"

	a, _ := FamilyHash(mk(entry.ExceptionPayload{
		Class:   "PaymentError",
		Message: "charge 42 for 550e8400-e29b-41d4-a716-446655440000 declined",
		Trace:   trace,
	}))
	b, _ := FamilyHash(mk(entry.ExceptionPayload{
		Class:   "PaymentError",
		Message: "charge 7 for 123e4567-e89b-12d3-a456-426614174000 declined",
		Trace:   trace,
	}))
	if a != b {
		t.Errorf("messages differing only in ids hash differently: %q vs %q", a, b)
	}

	c, _ := FamilyHash(mk(entry.ExceptionPayload{
		Class:   "RefundError",
		Message: "charge 42 for 550e8400-e29b-41d4-a716-446655440000 declined",
		Trace:   trace,
	}))
	if a == c {
		t.Error("different exception classes hash equal")
	}

	d, _ := FamilyHash(mk(entry.ExceptionPayload{
		Class:   "PaymentError",
		Message: "charge 42 for 550e8400-e29b-41d4-a716-446655440000 declined",
		Trace:   "    at charge (/srv/api/src/billing/refund.ts:99:1)",
	}))
	if a == d {
		t.Error("different first frames hash equal")
	}
}

func TestFamilyHashQuery(t *testing.T) {
	a, _ := FamilyHash(mk(entry.QueryPayload{SQL: "SELECT * FROM t WHERE id = 1", Source: "main"}))
	b, _ := FamilyHash(mk(entry.QueryPayload{SQL: "SELECT * FROM t WHERE id = 999", Source: "main"}))
	if a != b {
		t.Errorf("same query shape hashes differently: %q vs %q", a, b)
	}

	c, _ := FamilyHash(mk(entry.QueryPayload{SQL: "SELECT * FROM t WHERE id = 1", Source: "replica"}))
	if a == c {
		t.Error("different source labels hash equal")
	}
}

func TestFamilyHashCommandIgnoresArguments(t *testing.T) {
	a, _ := FamilyHash(mk(entry.CommandPayload{Command: "queue:retry", Handler: "RetryCommand", Arguments: []string{"--all"}, Exit: 0}))
	b, _ := FamilyHash(mk(entry.CommandPayload{Command: "queue:retry", Handler: "RetryCommand", Arguments: []string{"--id", "9"}, Exit: 1}))
	if a != b {
		t.Errorf("command with different arguments hashes differently: %q vs %q", a, b)
	}

	c, _ := FamilyHash(mk(entry.CommandPayload{Command: "queue:flush", Handler: "FlushCommand"}))
	if a == c {
		t.Error("different commands hash equal")
	}
}

func TestFamilyHashAuthCheck(t *testing.T) {
	a, _ := FamilyHash(mk(entry.AuthCheckPayload{Check: "PostPolicy", Action: "update", Subject: "Post:42"}))
	b, _ := FamilyHash(mk(entry.AuthCheckPayload{Check: "PostPolicy", Action: "update", Subject: "Post:99"}))
	if a != b {
		t.Errorf("subjects differing only in id hash differently: %q vs %q", a, b)
	}

	c, _ := FamilyHash(mk(entry.AuthCheckPayload{Check: "PostPolicy", Action: "delete", Subject: "Post:42"}))
	if a == c {
		t.Error("different actions hash equal")
	}
}

func TestFamilyHashBatchIgnoresCounts(t *testing.T) {
	a, _ := FamilyHash(mk(entry.BatchPayload{Name: "users.import", Op: "insert", Items: 10, Failed: 0}))
	b, _ := FamilyHash(mk(entry.BatchPayload{Name: "users.import", Op: "insert", Items: 5000, Failed: 3}))
	if a != b {
		t.Errorf("batch with different counts hashes differently: %q vs %q", a, b)
	}

	c, _ := FamilyHash(mk(entry.BatchPayload{Name: "users.import", Op: "delete"}))
	if a == c {
		t.Error("different batch op types hash equal")
	}
}

func TestFamilyHashJob(t *testing.T) {
	a, _ := FamilyHash(mk(entry.JobPayload{Name: "SendReceipt", Queue: "mail", Status: "failed", Attempt: 1}))
	b, _ := FamilyHash(mk(entry.JobPayload{Name: "SendReceipt", Queue: "mail", Status: "processed", Attempt: 4}))
	if a != b {
		t.Errorf("same job name and queue hashes differently: %q vs %q", a, b)
	}

	c, _ := FamilyHash(mk(entry.JobPayload{Name: "SendReceipt", Queue: "priority"}))
	if a == c {
		t.Error("different queues hash equal")
	}
}

func TestFamilyHashSchedule(t *testing.T) {
	a, _ := FamilyHash(mk(entry.SchedulePayload{Task: "backup", Schedule: "@daily", Status: "ok", DurationMS: 10}))
	b, _ := FamilyHash(mk(entry.SchedulePayload{Task: "backup", Schedule: "@daily", Status: "error", DurationMS: 99}))
	if a != b {
		t.Errorf("same task and schedule hashes differently: %q vs %q", a, b)
	}
}

// Kinds with identical projections must still hash apart: the digest
// separates parts, so ("a", "") never collides with ("", "a").
func TestDigestSeparatesParts(t *testing.T) {
	if digest("a", "") == digest("", "a") {
		t.Error("digest does not separate parts")
	}
	if digest("ab") == digest("a", "b") {
		t.Error("digest joins parts without a separator")
	}
}
