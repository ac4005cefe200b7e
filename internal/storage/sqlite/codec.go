package sqlite

import (
	"encoding/json"
	"fmt"

	"spyglass/internal/entry"

	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the encoded payload size above which blobs are
// zstd-compressed before hitting disk. Small payloads stay plain: the
// frame overhead would outweigh the savings.
const compressThreshold = 1 << 10

var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	zstdEnc, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("sqlite: init zstd encoder: %v", err))
	}
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("sqlite: init zstd decoder: %v", err))
	}
}

func encodePayload(p entry.Payload) ([]byte, bool, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, false, fmt.Errorf("encode payload: %w", err)
	}
	if len(raw) < compressThreshold {
		return raw, false, nil
	}
	return zstdEnc.EncodeAll(raw, nil), true, nil
}

func decodePayload(kind entry.Kind, blob []byte, compressed bool) (entry.Payload, error) {
	if compressed {
		raw, err := zstdDec.DecodeAll(blob, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
		blob = raw
	}
	return entry.DecodePayload(kind, blob, json.Unmarshal)
}
