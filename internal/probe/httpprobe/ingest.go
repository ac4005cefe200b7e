package httpprobe

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"spyglass/internal/collector"
	"spyglass/internal/entry"
)

// maxIngestBytes limits the decompressed size of a pushed batch.
const maxIngestBytes = 10 << 20

// zstdDec is a concurrent-safe zstd decoder shared by all requests.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxIngestBytes),
	)
	if err != nil {
		panic("httpprobe: init zstd decoder: " + err.Error())
	}
}

// pushedEntry is the wire shape accepted by the ingest endpoint: the
// kind names the payload struct, the payload is decoded against it.
type pushedEntry struct {
	Kind          entry.Kind      `json:"kind"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
	Tags          []string        `json:"tags"`
	Payload       json.RawMessage `json:"payload"`
}

// IngestHandler returns the handler for pushed entry batches. Mount it
// at POST /probe/entries. The body is a JSON object or array of
// objects, optionally gzip- or zstd-compressed (Content-Encoding).
// A batch is accepted atomically: one malformed item rejects the whole
// request and nothing is collected.
func (p *Probe) IngestHandler() http.Handler {
	return http.HandlerFunc(p.handleIngest)
}

func (p *Probe) handleIngest(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(req.Body, req.Header.Get("Content-Encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "no entries in request", http.StatusBadRequest)
		return
	}

	// Accept either a single object or an array of objects.
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		items = []json.RawMessage{body}
	}
	if len(items) == 0 {
		http.Error(w, "no entries in request", http.StatusBadRequest)
		return
	}

	type parsed struct {
		payload entry.Payload
		opts    []collector.Option
	}
	batch := make([]parsed, 0, len(items))
	for i, item := range items {
		var pe pushedEntry
		if err := json.Unmarshal(item, &pe); err != nil {
			http.Error(w, fmt.Sprintf("entry %d: %v", i, err), http.StatusBadRequest)
			return
		}
		if !pe.Kind.Valid() {
			http.Error(w, fmt.Sprintf("entry %d: unknown kind %q", i, pe.Kind), http.StatusBadRequest)
			return
		}
		payload, err := entry.DecodePayload(pe.Kind, pe.Payload, json.Unmarshal)
		if err != nil {
			http.Error(w, fmt.Sprintf("entry %d: %v", i, err), http.StatusBadRequest)
			return
		}

		var opts []collector.Option
		if !pe.Timestamp.IsZero() {
			opts = append(opts, collector.WithTimestamp(pe.Timestamp))
		}
		if pe.CorrelationID != "" {
			opts = append(opts, collector.WithCorrelationID(pe.CorrelationID))
		}
		if len(pe.Tags) > 0 {
			opts = append(opts, collector.WithTags(pe.Tags...))
		}
		batch = append(batch, parsed{payload: payload, opts: opts})
	}

	for _, item := range batch {
		p.collector.Collect(req.Context(), item.payload, item.opts...)
	}

	w.Header().Set("X-Entries-Received", strconv.Itoa(len(batch)))
	w.WriteHeader(http.StatusAccepted)
}

// readBody reads and decompresses a request body based on the
// Content-Encoding header. Supports gzip, zstd, and identity.
func readBody(body io.Reader, contentEncoding string) ([]byte, error) {
	switch contentEncoding {
	case "zstd":
		compressed, err := io.ReadAll(io.LimitReader(body, maxIngestBytes))
		if err != nil {
			return nil, fmt.Errorf("read compressed body: %w", err)
		}
		decompressed, err := zstdDec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress zstd body: %w", err)
		}
		return decompressed, nil

	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		return io.ReadAll(io.LimitReader(gz, maxIngestBytes))

	case "", "identity":
		return io.ReadAll(io.LimitReader(body, maxIngestBytes))

	default:
		return nil, fmt.Errorf("unsupported Content-Encoding: %q", contentEncoding)
	}
}
