// Package httpprobe records HTTP traffic as entries.
//
// Three capture points share one Probe:
//   - Middleware wraps a server handler and records every handled
//     request as a request entry.
//   - Transport wraps an http.RoundTripper and records every outgoing
//     request as a client_request entry.
//   - IngestHandler accepts entry batches pushed by out-of-process
//     probes over POST.
//
// Correlation: the middleware reads X-Correlation-Id from the incoming
// request (generating a fresh id when absent), stores it on the request
// context, and echoes it on the response. The transport forwards the
// context's id on outgoing requests, so a chain of services shares one
// correlation id end to end.
package httpprobe

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"spyglass/internal/collector"
)

// CorrelationHeader carries the correlation id between services.
const CorrelationHeader = "X-Correlation-Id"

// ErrNoCollector is returned when a Probe is built without a collector.
var ErrNoCollector = errors.New("httpprobe: collector is required")

// Config configures a Probe. Collector is required.
type Config struct {
	Collector *collector.Collector

	// CaptureHeaders lists request headers recorded on request entries.
	// Empty means no headers are recorded.
	CaptureHeaders []string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Probe records HTTP traffic. Build one per service and reuse it for
// the middleware, the transport, and the ingest handler.
type Probe struct {
	collector      *collector.Collector
	captureHeaders []string
	now            func() time.Time
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
		collector:      cfg.Collector,
		captureHeaders: cfg.CaptureHeaders,
		now:            cfg.Now,
	}, nil
}

// headerSnapshot copies the configured allowlist of headers from req.
func (p *Probe) headerSnapshot(req *http.Request) map[string]string {
	if len(p.captureHeaders) == 0 {
		return nil
	}
	headers := make(map[string]string, len(p.captureHeaders))
	for _, name := range p.captureHeaders {
		if v := req.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// clientIP extracts the originating client address, preferring the
// first X-Forwarded-For hop over the socket peer.
func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
