package compress

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// FastCompressor is the latency-optimized variant: snappy block framing,
// ~500 MB/s single-core, ~2-3x ratio on repetitive payloads. This reuses
// the same snappy dependency the reference stream transport leans on for
// its own wire compression, here as a block codec rather than a streaming
// Writer/Reader pair.
type FastCompressor struct {
	// level is accepted for config-shape parity with Balanced; snappy has
	// no tunable level, so it is otherwise unused.
	level int
}

// NewFast constructs the fast compressor. level is opaque and currently
// has no effect on snappy's behavior.
func NewFast(level int) *FastCompressor {
	return &FastCompressor{level: level}
}

func (c *FastCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *FastCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(ErrCompression, err.Error())
	}
	return out, nil
}
