package redis

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// marshal and unmarshal wrap msgpack with the json struct tags the
// entry payloads already carry, so blobs use the same field names as
// the sqlite store and the ingest endpoint.

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
