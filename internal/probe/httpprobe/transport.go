package httpprobe

import (
	"net/http"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// Transport returns an http.RoundTripper that records every outgoing
// request as a client_request entry. A nil base uses
// http.DefaultTransport. If the request context carries a correlation
// id, it is forwarded on the X-Correlation-Id header.
func (p *Probe) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{base: base, probe: p}
}

type transport struct {
	base  http.RoundTripper
	probe *Probe
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := t.probe.now()

	id := entry.CorrelationIDFromContext(req.Context())
	if id != "" && req.Header.Get(CorrelationHeader) == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set(CorrelationHeader, id)
	}

	resp, err := t.base.RoundTrip(req)

	payload := entry.ClientRequestPayload{
		Method:     req.Method,
		URL:        req.URL.String(),
		DurationMS: durationMS(t.probe.now().Sub(start)),
	}
	if err == nil {
		payload.StatusCode = resp.StatusCode
	}

	var opts []collector.Option
	if id != "" {
		opts = append(opts, collector.WithCorrelationID(id))
	}
	t.probe.collector.Collect(req.Context(), payload, opts...)

	return resp, err
}
