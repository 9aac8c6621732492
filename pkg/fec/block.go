package fec

import (
	"time"

	"github.com/google/uuid"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

// DefaultBlockTimeout is the default eviction deadline for an incomplete
// FEC block, mirroring the packetizer's reassembly timeout.
const DefaultBlockTimeout = 5 * time.Second

// EncodeFragments takes the k fragment envelopes the packetizer produced
// for one message and returns k+m shard envelopes: the k inputs with
// their payloads zero-padded to the longest one and FecInfo attached,
// followed by m freshly built parity envelopes. When codec has m == 0,
// only the k padded data shards are returned (FecInfo is still attached
// so the receiver's accounting stays uniform).
func EncodeFragments(frags []envelope.Envelope, codec *Codec, blockID uint32) ([]envelope.Envelope, error) {
	if len(frags) != codec.K() {
		return nil, errBadParameters
	}

	// A single-fragment message carries no FragmentInfo from the
	// packetizer (identity case). FEC block bookkeeping still needs a
	// shard index and shared message id, so one is synthesized here.
	messageID := frags[0].ID
	for i := range frags {
		if frags[i].Metadata.Fragment != nil {
			messageID = frags[i].Metadata.Fragment.MessageID
			break
		}
	}
	for i := range frags {
		if frags[i].Metadata.Fragment == nil {
			frags[i] = frags[i].Clone()
			frags[i].Metadata.Fragment = &envelope.FragmentInfo{
				FragmentID:     uint32(i),
				TotalFragments: uint32(len(frags)),
				Offset:         0,
				Length:         uint32(len(frags[i].Payload)),
				MessageID:      messageID,
			}
		}
	}

	payloads := make([][]byte, len(frags))
	for i, f := range frags {
		payloads[i] = f.Payload
	}
	padded, lengths := PadShards(payloads)

	shards, err := codec.Encode(padded)
	if err != nil {
		return nil, err
	}

	out := make([]envelope.Envelope, 0, len(shards))
	for i, f := range frags {
		shard := f.Clone()
		shard.Payload = shards[i]
		shard.Metadata.Fec = &envelope.FecInfo{K: uint16(codec.K()), M: uint16(codec.M()), BlockID: blockID, Lengths: lengths}
		out = append(out, shard)
	}
	if codec.M() == 0 {
		return out, nil
	}
	for i := codec.K(); i < codec.K()+codec.M(); i++ {
		parity := envelope.Envelope{
			ID:        uuid.New(),
			Timestamp: frags[0].Timestamp,
			Priority:  frags[0].Priority,
			Topic:     frags[0].Topic,
			Payload:   shards[i],
			Metadata: envelope.Metadata{
				SourceNode: frags[0].Metadata.SourceNode,
				Fragment: &envelope.FragmentInfo{
					FragmentID: uint32(i),
					MessageID:  messageID,
				},
				Fec: &envelope.FecInfo{K: uint16(codec.K()), M: uint16(codec.M()), BlockID: blockID, Lengths: lengths},
			},
		}
		out = append(out, parity)
	}
	return out, nil
}

type blockEntry struct {
	k, m    int
	shards  map[int]envelope.Envelope
	lengths []uint32
	oldest  time.Time
}

// Reassembler collects the shards of FEC blocks arriving out of order
// (or with losses) and reconstructs the original k data fragments once
// either every shard arrives or enough do for Reed-Solomon to recover
// the rest. Grounded on the same pending-entry/GC shape as
// packet.Defragmenter.
type Reassembler struct {
	timeout time.Duration
	maxSize int
	entries map[uint32]*blockEntry
	codecs  map[[2]int]*Codec

	now func() time.Time

	// OnUnrecoverable, if set, is called with a block id that was
	// evicted for exceeding the timeout with too many shards missing.
	OnUnrecoverable func(blockID uint32)
}

// NewReassembler builds a Reassembler with the given block timeout and
// maximum number of concurrently in-flight blocks.
func NewReassembler(timeout time.Duration, maxBlocks int) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultBlockTimeout
	}
	if maxBlocks <= 0 {
		maxBlocks = 100
	}
	return &Reassembler{
		timeout: timeout,
		maxSize: maxBlocks,
		entries: make(map[uint32]*blockEntry),
		codecs:  make(map[[2]int]*Codec),
		now:     time.Now,
	}
}

// Arrive feeds one shard envelope into the block reassembly table.
// Returns the k reconstructed fragment envelopes (each carrying its
// original FragmentInfo, with FecInfo cleared) once the block is
// complete or recoverable; returns (nil, nil) while still waiting on
// more shards.
func (r *Reassembler) Arrive(shard envelope.Envelope) ([]envelope.Envelope, error) {
	r.sweep()

	fec := shard.Metadata.Fec
	if fec == nil {
		return nil, errNotAShard
	}
	frag := shard.Metadata.Fragment
	if frag == nil {
		return nil, errNotAShard
	}

	entry, ok := r.entries[fec.BlockID]
	if !ok {
		if len(r.entries) >= r.maxSize {
			r.evictOldest()
		}
		entry = &blockEntry{k: int(fec.K), m: int(fec.M), shards: make(map[int]envelope.Envelope), lengths: fec.Lengths}
		r.entries[fec.BlockID] = entry
	}

	idx := int(frag.FragmentID)
	if _, exists := entry.shards[idx]; exists {
		return nil, nil
	}
	now := r.now()
	entry.shards[idx] = shard
	if entry.oldest.IsZero() || now.Before(entry.oldest) {
		entry.oldest = now
	}
	if len(entry.lengths) == 0 && len(fec.Lengths) > 0 {
		entry.lengths = fec.Lengths
	}

	if len(entry.shards) < entry.k {
		return nil, nil
	}

	codec, err := r.codecFor(entry.k, entry.m)
	if err != nil {
		return nil, err
	}

	raw := make([][]byte, entry.k+entry.m)
	erasures := make([]int, 0, entry.m)
	for i := range raw {
		if s, ok := entry.shards[i]; ok {
			raw[i] = s.Payload
		} else {
			erasures = append(erasures, i)
		}
	}

	dataShards, err := codec.Decode(raw, erasures)
	if err != nil {
		return nil, err
	}
	delete(r.entries, fec.BlockID)

	out := make([]envelope.Envelope, 0, entry.k)
	var offset uint32
	for i := 0; i < entry.k; i++ {
		length := uint32(len(dataShards[i]))
		if i < len(entry.lengths) {
			length = entry.lengths[i]
		}

		var base envelope.Envelope
		if s, ok := entry.shards[i]; ok {
			base = s.Clone()
		} else {
			base = envelope.Envelope{
				ID:        uuid.New(),
				Timestamp: shard.Timestamp,
				SchemaID:  shard.SchemaID,
				Priority:  shard.Priority,
				Topic:     shard.Topic,
				Metadata: envelope.Metadata{
					SourceNode: shard.Metadata.SourceNode,
					Fragment: &envelope.FragmentInfo{
						FragmentID:     uint32(i),
						TotalFragments: uint32(entry.k),
						Offset:         offset,
						Length:         length,
						MessageID:      frag.MessageID,
					},
				},
			}
		}
		base.Payload = dataShards[i][:length]
		base.Metadata.Fec = nil
		out = append(out, base)
		offset += length
	}
	return out, nil
}

func (r *Reassembler) codecFor(k, m int) (*Codec, error) {
	key := [2]int{k, m}
	if c, ok := r.codecs[key]; ok {
		return c, nil
	}
	c, err := New(k, m)
	if err != nil {
		return nil, err
	}
	r.codecs[key] = c
	return c, nil
}

func (r *Reassembler) sweep() {
	now := r.now()
	for id, entry := range r.entries {
		if now.Sub(entry.oldest) > r.timeout {
			delete(r.entries, id)
			if r.OnUnrecoverable != nil {
				r.OnUnrecoverable(id)
			}
		}
	}
}

func (r *Reassembler) evictOldest() {
	var oldestID uint32
	var oldestTime time.Time
	first := true
	for id, entry := range r.entries {
		if first || entry.oldest.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.oldest
			first = false
		}
	}
	if !first {
		delete(r.entries, oldestID)
	}
}

// SetClock overrides the time source used for arrival timestamps and
// timeout sweeps. Intended for tests.
func (r *Reassembler) SetClock(now func() time.Time) {
	r.now = now
}
