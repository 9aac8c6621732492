// Package fec implements Reed-Solomon erasure coding over a fixed shard
// set, using github.com/klauspost/reedsolomon configured with the same
// kind of -datashard/-parityshard split idiom.
package fec

import (
	"github.com/klauspost/reedsolomon"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

// Codec encodes/decodes one fixed (k, m) Reed-Solomon configuration.
// Operates over GF(2^8); all shards passed to Encode/Decode must be
// equal length -- callers pad to the maximum data-shard length and
// record true lengths out of band (e.g. FragmentInfo.Length).
type Codec struct {
	k, m int
	enc  reedsolomon.Encoder
}

// New builds a Codec for k data shards and m parity shards.
func New(k, m int) (*Codec, error) {
	if k < 1 || m < 0 {
		return nil, errBadParameters
	}
	if m == 0 {
		return &Codec{k: k, m: m}, nil
	}
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, errBadParameters
	}
	return &Codec{k: k, m: m, enc: enc}, nil
}

// K returns the configured data-shard count.
func (c *Codec) K() int { return c.k }

// M returns the configured parity-shard count.
func (c *Codec) M() int { return c.m }

// Encode takes exactly k equal-length data shards and returns k+m shards:
// the first k unchanged (systematic), the last m parity. When m == 0,
// Encode degenerates to the identity.
func (c *Codec) Encode(packets [][]byte) ([][]byte, error) {
	if len(packets) != c.k {
		return nil, errBadParameters
	}
	if c.m == 0 {
		out := make([][]byte, c.k)
		copy(out, packets)
		return out, nil
	}

	shardLen := len(packets[0])
	for _, p := range packets {
		if len(p) != shardLen {
			return nil, errUnequalShards
		}
	}

	shards := make([][]byte, c.k+c.m)
	copy(shards, packets)
	for i := c.k; i < c.k+c.m; i++ {
		shards[i] = make([]byte, shardLen)
	}

	if err := c.enc.Encode(shards); err != nil {
		return nil, wrapEncode(err)
	}
	return shards, nil
}

// Decode recovers the k original data shards from a (k+m)-length slice in
// which lost shards are nil. erasures names which positions are missing
// (a cross-check against the caller's own bookkeeping, not required to
// reconstruct the nil positions since Decode derives them from the slice
// itself). Fails with ErrUnrecoverable when more than m shards are
// missing.
func (c *Codec) Decode(shards [][]byte, erasures []int) ([][]byte, error) {
	if len(shards) != c.k+c.m {
		return nil, errBadParameters
	}
	if len(erasures) > c.m {
		return nil, ErrUnrecoverable
	}
	if c.m == 0 {
		out := make([][]byte, c.k)
		for i := 0; i < c.k; i++ {
			if shards[i] == nil {
				return nil, ErrUnrecoverable
			}
			out[i] = shards[i]
		}
		return out, nil
	}

	work := make([][]byte, len(shards))
	copy(work, shards)

	if err := c.enc.ReconstructData(work); err != nil {
		return nil, ErrUnrecoverable
	}

	out := make([][]byte, c.k)
	copy(out, work[:c.k])
	return out, nil
}

// Overhead reports the FEC redundancy ratio m/k.
func (c *Codec) Overhead() float64 {
	if c.k == 0 {
		return 0
	}
	return float64(c.m) / float64(c.k)
}

// PadShards pads every shard in packets up to the length of the longest
// one, returning the padded copies and each shard's true original length
// (to be carried out of band, e.g. in FragmentInfo.Length).
func PadShards(packets [][]byte) (padded [][]byte, lengths []uint32) {
	maxLen := 0
	for _, p := range packets {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	padded = make([][]byte, len(packets))
	lengths = make([]uint32, len(packets))
	for i, p := range packets {
		lengths[i] = uint32(len(p))
		buf := make([]byte, maxLen)
		copy(buf, p)
		padded[i] = buf
	}
	return padded, lengths
}

// BlockFecInfo builds the FecInfo shared by every shard envelope of one
// encoded block.
func BlockFecInfo(k, m int, blockID uint32) envelope.FecInfo {
	return envelope.FecInfo{K: uint16(k), M: uint16(m), BlockID: blockID}
}
