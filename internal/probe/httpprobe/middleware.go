package httpprobe

import (
	"net/http"

	"github.com/mileusna/useragent"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// Middleware wraps next so every handled request is recorded as a
// request entry. The correlation id is available to the handler via
// entry.CorrelationIDFromContext, so entries produced while serving the
// request correlate with it.
func (p *Probe) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := p.now()

		id := req.Header.Get(CorrelationHeader)
		if id == "" {
			id = entry.NewCorrelationID()
		}
		ctx := entry.ContextWithCorrelationID(req.Context(), id)
		w.Header().Set(CorrelationHeader, id)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, req.WithContext(ctx))

		ua := useragent.Parse(req.UserAgent())
		p.collector.Collect(ctx, entry.RequestPayload{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: rec.status(),
			DurationMS: durationMS(p.now().Sub(start)),
			IPAddress:  clientIP(req),
			Headers:    p.headerSnapshot(req),
			Client: entry.ClientInfo{
				Name:   ua.Name,
				OS:     ua.OS,
				Mobile: ua.Mobile,
			},
			BodySize: rec.written,
		}, collector.WithCorrelationID(id))
	})
}

// statusRecorder wraps http.ResponseWriter to observe the status code
// and the number of body bytes written. A handler that writes a body
// without calling WriteHeader implicitly sends 200, so the zero code
// is resolved by status().
type statusRecorder struct {
	http.ResponseWriter
	code    int
	started bool
	written int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.started {
		r.started = true
		r.code = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.started {
		r.started = true
		r.code = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)
	return n, err
}

// status returns the observed status code, defaulting to 200 for
// handlers that never wrote anything.
func (r *statusRecorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

// Flush forwards to the wrapped writer, keeping streaming handlers
// working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
