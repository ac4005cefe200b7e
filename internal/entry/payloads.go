package entry

// Severity is a log payload's level, from most to least urgent.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
	SeverityDebug Severity = "debug"
	SeverityTrace Severity = "trace"
)

// ClientInfo is a parsed user agent attached to request entries.
type ClientInfo struct {
	Name   string `json:"name,omitempty"`
	OS     string `json:"os,omitempty"`
	Mobile bool   `json:"mobile,omitempty"`
}

// RequestPayload records one handled HTTP request.
type RequestPayload struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	StatusCode int               `json:"statusCode"`
	DurationMS float64           `json:"durationMs"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Client     ClientInfo        `json:"client"`
	BodySize   int64             `json:"bodySize,omitempty"`
}

func (RequestPayload) Kind() Kind { return KindRequest }

// QueryPayload records one database query.
type QueryPayload struct {
	SQL string `json:"sql"`

	// Source labels the connection or database the query ran against.
	Source     string  `json:"source,omitempty"`
	DurationMS float64 `json:"durationMs"`
	Slow       bool    `json:"slow,omitempty"`
}

func (QueryPayload) Kind() Kind { return KindQuery }

// ExceptionPayload records one thrown or recovered error.
type ExceptionPayload struct {
	Class   string `json:"class"`
	Message string `json:"message"`

	// Trace is the rendered stack, one frame per line.
	Trace   string `json:"trace,omitempty"`
	Handled bool   `json:"handled,omitempty"`
}

func (ExceptionPayload) Kind() Kind { return KindException }

// LogPayload records one application log line.
type LogPayload struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Context labels the logger or channel that emitted the line.
	Context string            `json:"context,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

func (LogPayload) Kind() Kind { return KindLog }

// CachePayload records one cache interaction.
type CachePayload struct {
	// Op is one of: hit, miss, set, forget.
	Op         string `json:"op"`
	Key        string `json:"key"`
	TTLSeconds int64  `json:"ttlSeconds,omitempty"`
}

func (CachePayload) Kind() Kind { return KindCache }

// EventPayload records one dispatched application event.
type EventPayload struct {
	Name          string         `json:"name"`
	Payload       map[string]any `json:"payload,omitempty"`
	ListenerCount int            `json:"listenerCount,omitempty"`
}

func (EventPayload) Kind() Kind { return KindEvent }

// JobPayload records one background job transition.
type JobPayload struct {
	Name  string `json:"name"`
	Queue string `json:"queue,omitempty"`

	// Status is one of: queued, processing, processed, failed.
	Status  string `json:"status"`
	Attempt int    `json:"attempt,omitempty"`
}

func (JobPayload) Kind() Kind { return KindJob }

// MailPayload records one outgoing mail.
type MailPayload struct {
	Mailable string   `json:"mailable"`
	Subject  string   `json:"subject,omitempty"`
	To       []string `json:"to,omitempty"`
}

func (MailPayload) Kind() Kind { return KindMail }

// SchedulePayload records one scheduled task run.
type SchedulePayload struct {
	Task string `json:"task"`

	// Schedule is the interval or cron text the task runs on.
	Schedule string `json:"schedule,omitempty"`

	// Status is one of: ok, error.
	Status     string  `json:"status"`
	DurationMS float64 `json:"durationMs,omitempty"`
}

func (SchedulePayload) Kind() Kind { return KindSchedule }

// ClientRequestPayload records one outgoing HTTP request.
type ClientRequestPayload struct {
	Method     string  `json:"method"`
	URL        string  `json:"url"`
	StatusCode int     `json:"statusCode,omitempty"`
	DurationMS float64 `json:"durationMs"`
}

func (ClientRequestPayload) Kind() Kind { return KindClientRequest }

// KeyValuePayload records one key-value store command.
type KeyValuePayload struct {
	Op  string `json:"op"`
	Key string `json:"key,omitempty"`

	// Store labels the connection the command ran against.
	Store      string  `json:"store,omitempty"`
	DurationMS float64 `json:"durationMs,omitempty"`
	Miss       bool    `json:"miss,omitempty"`
}

func (KeyValuePayload) Kind() Kind { return KindKeyValue }

// ModelPayload records one model mutation.
type ModelPayload struct {
	// Action is one of: created, updated, deleted.
	Action  string         `json:"action"`
	Model   string         `json:"model"`
	Changes map[string]any `json:"changes,omitempty"`
}

func (ModelPayload) Kind() Kind { return KindModel }

// NotificationPayload records one dispatched notification.
type NotificationPayload struct {
	Notification string `json:"notification"`
	Channel      string `json:"channel,omitempty"`
	Notifiable   string `json:"notifiable,omitempty"`
	Queued       bool   `json:"queued,omitempty"`
}

func (NotificationPayload) Kind() Kind { return KindNotification }

// ViewPayload records one rendered template.
type ViewPayload struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`

	// Data lists the keys passed to the template, not the values.
	Data []string `json:"data,omitempty"`
}

func (ViewPayload) Kind() Kind { return KindView }

// CommandPayload records one console command invocation.
type CommandPayload struct {
	Command   string   `json:"command"`
	Handler   string   `json:"handler,omitempty"`
	Exit      int      `json:"exit"`
	Arguments []string `json:"arguments,omitempty"`
}

func (CommandPayload) Kind() Kind { return KindCommand }

// AuthCheckPayload records one authorization decision.
type AuthCheckPayload struct {
	// Check names the policy or gate consulted.
	Check  string `json:"check"`
	Action string `json:"action,omitempty"`

	// Subject identifies what was checked, e.g. "Post:42".
	Subject string `json:"subject,omitempty"`
	Allowed bool   `json:"allowed"`
}

func (AuthCheckPayload) Kind() Kind { return KindAuthCheck }

// BatchPayload records one bulk storage operation.
type BatchPayload struct {
	Name string `json:"name"`

	// Op is one of: insert, update, delete, mixed.
	Op     string `json:"op"`
	Items  int    `json:"items,omitempty"`
	Failed int    `json:"failed,omitempty"`
}

func (BatchPayload) Kind() Kind { return KindBatch }

// DumpPayload records one ad-hoc value dump.
type DumpPayload struct {
	// Dump is the rendered representation of the dumped value.
	Dump string `json:"dump"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

func (DumpPayload) Kind() Kind { return KindDump }
