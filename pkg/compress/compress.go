// Package compress provides pluggable, lossless block compression for
// telemetry payloads. Two variants are provided: Fast (latency-optimized,
// wraps snappy) and Balanced (ratio-oriented, wraps zstd).
package compress

import "github.com/pkg/errors"

// ErrCompression wraps any underlying compress/decompress failure. The
// pipeline never retries a failed (de)compression -- the caller drops the
// item and counts it.
var ErrCompression = errors.New("compress: operation failed")

// Compressor is the capability set every variant implements.
// decompress(compress(x)) == x for all byte sequences, including nil/empty.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Kind selects a Compressor implementation by name, matching the
// "compression = fast | balanced" configuration knob.
type Kind string

const (
	Fast     Kind = "fast"
	Balanced Kind = "balanced"
)

// New builds the named variant. level is passed through opaquely: a
// non-negative integer for Fast, 1..22 for Balanced.
func New(kind Kind, level int) (Compressor, error) {
	switch kind {
	case Fast:
		return NewFast(level), nil
	case Balanced:
		return NewBalanced(level)
	default:
		return nil, errors.Errorf("compress: unknown kind %q", kind)
	}
}
