package synthetic

import (
	"fmt"
	"math/rand/v2"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// payloadGen pairs a selection weight with a payload generator.
type payloadGen struct {
	weight   int
	generate func(g *Generator) (entry.Payload, []collector.Option)
}

// newGenerators returns one generator per entry kind, weighted toward
// the kinds a busy application produces most.
func newGenerators() []payloadGen {
	return []payloadGen{
		{weight: 22, generate: genLog},
		{weight: 18, generate: genRequest},
		{weight: 16, generate: genQuery},
		{weight: 8, generate: genCache},
		{weight: 6, generate: genKeyValue},
		{weight: 5, generate: genEvent},
		{weight: 5, generate: genJob},
		{weight: 4, generate: genClientRequest},
		{weight: 3, generate: genException},
		{weight: 3, generate: genModel},
		{weight: 2, generate: genView},
		{weight: 2, generate: genNotification},
		{weight: 1, generate: genSchedule},
		{weight: 1, generate: genMail},
		{weight: 1, generate: genCommand},
		{weight: 1, generate: genAuthCheck},
		{weight: 1, generate: genBatch},
		{weight: 1, generate: genDump},
	}
}

// pick returns a random element of s.
func pick[T any](rng *rand.Rand, s []T) T {
	return s[rng.IntN(len(s))]
}

var severities = []entry.Severity{
	entry.SeverityInfo, entry.SeverityInfo, entry.SeverityInfo,
	entry.SeverityInfo, entry.SeverityInfo, entry.SeverityInfo,
	entry.SeverityDebug, entry.SeverityDebug,
	entry.SeverityWarn, entry.SeverityWarn,
	entry.SeverityError,
	entry.SeverityTrace,
}

// logMessages are format strings with one numeric verb, so repeated
// draws produce distinct lines that normalize to the same family.
var logMessages = []string{
	"user %d logged in",
	"order %d placed",
	"payment intent %d confirmed",
	"cache warm finished in %dms",
	"queue depth at %d",
	"session %d expired",
	"webhook delivery %d succeeded",
	"inventory level for sku %d updated",
}

var logContexts = []string{"http", "checkout", "billing", "worker", "auth"}

func genLog(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.LogPayload{
		Severity: pick(g.rng, severities),
		Message:  fmt.Sprintf(pick(g.rng, logMessages), g.rng.IntN(100000)),
		Context:  pick(g.rng, logContexts),
	}
	if g.rng.IntN(3) == 0 {
		p.Attrs = map[string]string{"user": fmt.Sprintf("%d", g.rng.IntN(5000))}
	}
	return p, g.correlationOpts(false)
}

var methods = []string{"GET", "GET", "GET", "GET", "POST", "POST", "PUT", "PATCH", "DELETE"}

var pathBases = []string{"/orders", "/products", "/cart", "/users", "/invoices", "/webhooks/stripe"}

var statusCodes = []int{
	200, 200, 200, 200, 200, 200, 200, 200, 200, 200,
	201, 201, 204, 302,
	400, 401, 404, 404, 404, 422, 429,
	500, 503,
}

var clients = []entry.ClientInfo{
	{Name: "Chrome", OS: "macOS"},
	{Name: "Chrome", OS: "Windows"},
	{Name: "Firefox", OS: "Linux"},
	{Name: "Safari", OS: "iOS", Mobile: true},
	{Name: "Edge", OS: "Windows"},
	{Name: "curl"},
}

func (g *Generator) randomPath() string {
	base := pick(g.rng, pathBases)
	if g.rng.IntN(2) == 0 {
		return fmt.Sprintf("%s/%d", base, g.rng.IntN(9000)+100)
	}
	return base
}

func genRequest(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.RequestPayload{
		Method:     pick(g.rng, methods),
		Path:       g.randomPath(),
		StatusCode: pick(g.rng, statusCodes),
		DurationMS: g.jitterMS(180),
		IPAddress:  fmt.Sprintf("203.0.113.%d", g.rng.IntN(254)+1),
		Client:     pick(g.rng, clients),
		BodySize:   int64(g.rng.IntN(40960)),
	}
	return p, g.correlationOpts(true)
}

// sqlTemplates are format strings with one numeric verb; literals vary
// per draw but normalize to the same family.
var sqlTemplates = []string{
	"SELECT * FROM users WHERE id = %d",
	"SELECT id, status, total FROM orders WHERE user_id = %d ORDER BY created_at DESC LIMIT 20",
	"UPDATE sessions SET last_seen_at = now() WHERE id = %d",
	"INSERT INTO audit_log (actor_id, action) VALUES (%d, 'update')",
	"DELETE FROM password_resets WHERE created_at < now() - interval '%d hours'",
	"SELECT count(*) FROM jobs WHERE queue = 'default' AND available_at <= %d",
}

var querySources = []string{"pgsql", "pgsql", "pgsql", "replica", "analytics"}

func genQuery(g *Generator) (entry.Payload, []collector.Option) {
	ms := g.jitterMS(40)
	p := entry.QueryPayload{
		SQL:        fmt.Sprintf(pick(g.rng, sqlTemplates), g.rng.IntN(100000)),
		Source:     pick(g.rng, querySources),
		DurationMS: ms,
		Slow:       ms >= 100,
	}
	return p, g.correlationOpts(false)
}

var cacheOps = []string{"hit", "hit", "hit", "hit", "hit", "miss", "miss", "set", "set", "forget"}

var cacheKeyPrefixes = []string{"user", "session", "cart", "product", "rate"}

var cacheTTLs = []int64{60, 300, 3600}

func genCache(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.CachePayload{
		Op:  pick(g.rng, cacheOps),
		Key: fmt.Sprintf("%s:%d", pick(g.rng, cacheKeyPrefixes), g.rng.IntN(10000)),
	}
	if p.Op == "set" {
		p.TTLSeconds = pick(g.rng, cacheTTLs)
	}
	return p, g.correlationOpts(false)
}

var kvOps = []string{"get", "get", "get", "set", "set", "del", "incr", "expire", "lpush", "hset"}

func genKeyValue(g *Generator) (entry.Payload, []collector.Option) {
	op := pick(g.rng, kvOps)
	p := entry.KeyValuePayload{
		Op:         op,
		Key:        fmt.Sprintf("%s:%d", pick(g.rng, cacheKeyPrefixes), g.rng.IntN(10000)),
		Store:      "redis",
		DurationMS: g.jitterMS(3),
		Miss:       op == "get" && g.rng.IntN(4) == 0,
	}
	return p, g.correlationOpts(false)
}

var eventNames = []string{"OrderPlaced", "UserRegistered", "PaymentCaptured", "CartAbandoned", "InvoiceSent"}

func genEvent(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.EventPayload{
		Name:          pick(g.rng, eventNames),
		Payload:       map[string]any{"id": g.rng.IntN(100000)},
		ListenerCount: g.rng.IntN(4) + 1,
	}
	return p, g.correlationOpts(false)
}

var jobNames = []string{"SendInvoice", "ResizeImage", "SyncInventory", "DispatchWebhook", "RebuildRecommendations"}

var jobQueues = []string{"default", "default", "mail", "media"}

var jobStatuses = []string{
	"queued", "queued", "queued",
	"processing", "processing", "processing",
	"processed", "processed", "processed", "processed", "processed",
	"failed",
}

func genJob(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.JobPayload{
		Name:    pick(g.rng, jobNames),
		Queue:   pick(g.rng, jobQueues),
		Status:  pick(g.rng, jobStatuses),
		Attempt: 1,
	}
	if p.Status == "failed" {
		p.Attempt = g.rng.IntN(3) + 1
	}
	return p, g.correlationOpts(false)
}

var clientURLs = []string{
	"https://api.stripe.com/v1/charges",
	"https://api.stripe.com/v1/payment_intents",
	"https://hooks.slack.com/services/T0001/B0001",
	"https://api.sendgrid.com/v3/mail/send",
	"https://api.github.com/repos/acme/app/issues",
}

var clientStatusCodes = []int{200, 200, 200, 200, 200, 200, 200, 201, 201, 429, 500}

func genClientRequest(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.ClientRequestPayload{
		Method:     pick(g.rng, []string{"GET", "POST", "POST"}),
		URL:        pick(g.rng, clientURLs),
		StatusCode: pick(g.rng, clientStatusCodes),
		DurationMS: g.jitterMS(350),
	}
	return p, g.correlationOpts(false)
}

var exceptions = []struct{ class, message string }{
	{"app.PaymentDeclined", "card declined for order %d"},
	{"db.DeadlockDetected", "deadlock detected on orders row %d"},
	{"net.ConnectionReset", "connection reset by peer after %d bytes"},
	{"app.InventoryConflict", "sku %d oversold"},
}

func (g *Generator) randomTrace() string {
	frames := []string{
		fmt.Sprintf("at checkout (/app/http/checkout.go:%d:9)", g.rng.IntN(200)+10),
		"at dispatch (/app/http/router.go:41:3)",
		"at serve (/app/server/server.go:118:5)",
	}
	return strings.Join(frames, "\n")
}

func genException(g *Generator) (entry.Payload, []collector.Option) {
	ex := pick(g.rng, exceptions)
	p := entry.ExceptionPayload{
		Class:   ex.class,
		Message: fmt.Sprintf(ex.message, g.rng.IntN(100000)),
		Trace:   g.randomTrace(),
		Handled: g.rng.IntN(4) != 0,
	}
	return p, g.correlationOpts(false)
}

var modelActions = []string{"created", "updated", "updated", "updated", "deleted"}

var modelNames = []string{"User", "Order", "Product", "Invoice", "Shipment"}

func genModel(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.ModelPayload{
		Action: pick(g.rng, modelActions),
		Model:  pick(g.rng, modelNames),
	}
	if p.Action == "updated" {
		p.Changes = map[string]any{"status": pick(g.rng, []string{"pending", "paid", "shipped"})}
	}
	return p, g.correlationOpts(false)
}

var viewNames = []string{"orders.index", "orders.show", "cart.show", "emails.receipt", "home"}

func genView(g *Generator) (entry.Payload, []collector.Option) {
	name := pick(g.rng, viewNames)
	p := entry.ViewPayload{
		Name: name,
		Path: "resources/views/" + strings.ReplaceAll(name, ".", "/") + ".tmpl",
		Data: []string{"user", "items", "total"}[:g.rng.IntN(3)+1],
	}
	return p, g.correlationOpts(false)
}

var notifications = []string{"OrderShipped", "PasswordReset", "WeeklyDigest", "PaymentFailed"}

var channels = []string{"mail", "mail", "sms", "push", "slack"}

func genNotification(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.NotificationPayload{
		Notification: pick(g.rng, notifications),
		Channel:      pick(g.rng, channels),
		Notifiable:   fmt.Sprintf("User:%d", g.rng.IntN(5000)),
		Queued:       g.rng.IntN(2) == 0,
	}
	return p, g.correlationOpts(false)
}

var scheduleTasks = []struct{ task, schedule string }{
	{"prune-entries", "every 1h"},
	{"rotate-logs", "every 24h"},
	{"send-digests", "0 8 * * *"},
	{"sync-currency-rates", "*/5 * * * *"},
}

func genSchedule(g *Generator) (entry.Payload, []collector.Option) {
	st := pick(g.rng, scheduleTasks)
	p := entry.SchedulePayload{
		Task:       st.task,
		Schedule:   st.schedule,
		Status:     "ok",
		DurationMS: g.jitterMS(2000),
	}
	if g.rng.IntN(10) == 0 {
		p.Status = "error"
	}
	return p, g.correlationOpts(false)
}

var mailables = []struct{ mailable, subject string }{
	{"ReceiptMail", "Your receipt"},
	{"WelcomeMail", "Welcome aboard"},
	{"DigestMail", "Your weekly digest"},
	{"PasswordResetMail", "Reset your password"},
}

func genMail(g *Generator) (entry.Payload, []collector.Option) {
	m := pick(g.rng, mailables)
	p := entry.MailPayload{
		Mailable: m.mailable,
		Subject:  m.subject,
		To:       []string{petname.Generate(2, ".") + "@example.com"},
	}
	return p, g.correlationOpts(false)
}

var commands = []struct{ name, handler string }{
	{"migrate", "cli.MigrateCommand"},
	{"queue:work", "cli.QueueWorkCommand"},
	{"cache:clear", "cli.CacheClearCommand"},
	{"report:daily", "cli.DailyReportCommand"},
}

func genCommand(g *Generator) (entry.Payload, []collector.Option) {
	c := pick(g.rng, commands)
	p := entry.CommandPayload{
		Command: c.name,
		Handler: c.handler,
	}
	if g.rng.IntN(10) == 0 {
		p.Exit = 1
	}
	if g.rng.IntN(3) == 0 {
		p.Arguments = []string{"--force"}
	}
	return p, g.correlationOpts(false)
}

var authChecks = []string{"OrderPolicy", "AdminGate", "BillingPolicy"}

var authActions = []string{"view", "update", "delete", "access"}

func genAuthCheck(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.AuthCheckPayload{
		Check:   pick(g.rng, authChecks),
		Action:  pick(g.rng, authActions),
		Subject: fmt.Sprintf("Order:%d", g.rng.IntN(100000)),
		Allowed: g.rng.IntN(8) != 0,
	}
	return p, g.correlationOpts(false)
}

var batchNames = []string{"orders-backfill", "price-sync", "user-import", "index-rebuild"}

var batchOps = []string{"insert", "update", "delete", "mixed"}

func genBatch(g *Generator) (entry.Payload, []collector.Option) {
	name := pick(g.rng, batchNames)
	if g.rng.IntN(3) == 0 {
		name = petname.Generate(2, "-") + "-import"
	}
	p := entry.BatchPayload{
		Name:  name,
		Op:    pick(g.rng, batchOps),
		Items: g.rng.IntN(5000) + 1,
	}
	if g.rng.IntN(5) == 0 {
		p.Failed = g.rng.IntN(20)
	}
	return p, g.correlationOpts(false)
}

var dumpFiles = []string{"internal/checkout/cart.go", "internal/billing/invoice.go"}

func genDump(g *Generator) (entry.Payload, []collector.Option) {
	p := entry.DumpPayload{
		Dump: fmt.Sprintf("map[order:%d total:%d.50]", g.rng.IntN(100000), g.rng.IntN(500)),
		File: pick(g.rng, dumpFiles),
		Line: g.rng.IntN(300) + 10,
	}
	return p, g.correlationOpts(false)
}
