package compress

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// BalancedCompressor is the ratio-oriented variant: zstd, ~250 MB/s,
// ~3-5x ratio. klauspost/compress is already reachable transitively
// through the Reed-Solomon stack the FEC component depends on; it is the
// natural home for the balanced zstd codec rather than introducing a
// second compression dependency.
type BalancedCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewBalanced constructs the zstd compressor at the given level (1..22,
// clamped into that range).
func NewBalanced(level int) (*BalancedCompressor, error) {
	if level < 1 {
		level = 1
	} else if level > 22 {
		level = 22
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, errors.Wrap(err, "compress: build zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "compress: build zstd decoder")
	}
	return &BalancedCompressor{enc: enc, dec: dec}, nil
}

func (c *BalancedCompressor) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *BalancedCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(ErrCompression, err.Error())
	}
	return out, nil
}

// Close releases the zstd decoder's background goroutines. Callers that
// build a BalancedCompressor per pipeline instance should Close it on
// teardown.
func (c *BalancedCompressor) Close() {
	c.dec.Close()
}
