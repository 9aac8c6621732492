// Package delta implements XOR delta encoding between equal-sized
// successive payloads, with a simple and an adaptive variant. The XOR step
// is done with github.com/templexxx/xorsimd, the same dependency the FEC
// component pulls in transitively -- reused here as the delta primitive
// instead of a hand-rolled byte loop.
package delta

import "github.com/templexxx/xorsimd"

// Codec holds the reference frame needed to decode the next delta. It is
// not safe for concurrent use -- each pipeline instance owns one Codec.
type Codec struct {
	previous  []byte
	threshold float64 // 0 disables the adaptive check; Simple never sets it
	adaptive  bool
}

// NewSimple returns a codec that emits a delta whenever a same-sized
// previous frame exists, with no fallback based on the fraction of
// changed bytes.
func NewSimple() *Codec {
	return &Codec{}
}

// NewAdaptive returns a codec that additionally falls back to a full frame
// when the fraction of non-zero delta bytes is >= threshold (default 0.9
// when threshold <= 0).
func NewAdaptive(threshold float64) *Codec {
	if threshold <= 0 {
		threshold = 0.9
	}
	return &Codec{adaptive: true, threshold: threshold}
}

// Encode returns (frame, isDelta). isDelta is false when: no previous
// reference exists, sizes differ, or (adaptive only) the XOR is judged
// not worthwhile.
func (c *Codec) Encode(data []byte) ([]byte, bool) {
	if c.previous == nil || len(data) != len(c.previous) {
		c.previous = append([]byte(nil), data...)
		return data, false
	}

	out := make([]byte, len(data))
	xorsimd.Bytes(out, data, c.previous)

	if c.adaptive {
		nonZero := 0
		for _, b := range out {
			if b != 0 {
				nonZero++
			}
		}
		ratio := 0.0
		if len(out) > 0 {
			ratio = float64(nonZero) / float64(len(out))
		}
		if ratio >= c.threshold {
			c.previous = append([]byte(nil), data...)
			return data, false
		}
	}

	c.previous = append([]byte(nil), data...)
	return out, true
}

// Decode inverts Encode. isDelta must match the flag produced by the
// matching Encode call; callers that drop a frame between encoder and
// decoder must force a resync (the decoder has no way to detect the gap
// on its own).
func (c *Codec) Decode(data []byte, isDelta bool) ([]byte, error) {
	if !isDelta {
		c.previous = append([]byte(nil), data...)
		return data, nil
	}
	if c.previous == nil {
		return nil, errNoReference
	}
	if len(data) != len(c.previous) {
		return nil, errSizeMismatch
	}

	out := make([]byte, len(data))
	xorsimd.Bytes(out, data, c.previous)
	c.previous = out
	return out, nil
}

// Reset discards the reference frame. The very next Encode/Decode call
// after Reset always produces/expects a full, non-delta frame.
func (c *Codec) Reset() {
	c.previous = nil
}
