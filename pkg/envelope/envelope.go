// Package envelope defines the typed message container carried across the
// telemetry pipeline, along with the optional per-stage metadata attached by
// the fragmentation, FEC, and crypto stages.
package envelope

import (
	"github.com/google/uuid"
)

// Priority orders envelopes for the QoS shaper. Lower value means higher
// priority; P0 always overtakes P1, P2, P3.
type Priority uint8

const (
	P0 Priority = iota // Critical: commands, acks, safety
	P1                 // High: state updates, control
	P2                 // Medium: perception data
	P3                 // Low: logs, diagnostics
)

// NumPriorities is the number of distinct priority classes.
const NumPriorities = 4

func (p Priority) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "P?"
	}
}

// Valid reports whether p is one of P0..P3.
func (p Priority) Valid() bool {
	return p <= P3
}

// FragmentInfo is attached to an envelope that is one slice of a larger
// original payload produced by the packetizer.
type FragmentInfo struct {
	FragmentID     uint32
	TotalFragments uint32
	Offset         uint32
	Length         uint32
	MessageID      uuid.UUID
}

// FecInfo is attached to an envelope that is one shard of a Reed-Solomon
// FEC block. Lengths carries the true (unpadded) byte length of each of
// the k data shards, replicated onto every shard of the block -- the
// out-of-band manifest, needed so a lost data shard's
// original length is still known after RS reconstruction.
type FecInfo struct {
	K       uint16
	M       uint16
	BlockID uint32
	Lengths []uint32
}

// CryptoInfo records the key id, nonce and signature of a sealed
// envelope. No pipeline stage sets it and the codec's wire format does
// not carry it, so a decoded envelope never has one, whether its
// payload travelled encrypted or not.
type CryptoInfo struct {
	KeyID     string
	Nonce     [24]byte
	Signature [64]byte
}

// Metadata carries the per-producer sequencing information plus the
// optional fragment/FEC/crypto sub-records.
type Metadata struct {
	SourceNode     string
	SequenceNumber uint32
	Fragment       *FragmentInfo
	Fec            *FecInfo
	Crypto         *CryptoInfo
}

// Envelope is the unit of transport for the pipeline: a self-describing,
// opaque-payload message with routing and lifecycle metadata.
type Envelope struct {
	ID        uuid.UUID
	Timestamp string // ISO-8601 with fractional seconds and offset, preserved verbatim
	SchemaID  uint32
	Priority  Priority
	Topic     string
	Payload   []byte
	Metadata  Metadata
}

// New builds an envelope with a fresh id, leaving Timestamp empty for the
// caller to stamp; no pipeline stage fills it in.
func New(topic string, payload []byte, priority Priority, sourceNode string, seq uint32) Envelope {
	return Envelope{
		ID:       uuid.New(),
		Topic:    topic,
		Payload:  payload,
		Priority: priority,
		Metadata: Metadata{
			SourceNode:     sourceNode,
			SequenceNumber: seq,
		},
	}
}

// Clone returns a deep-enough copy so that mutating the fragment/fec/crypto
// sub-records of the copy never affects the original: every pipeline stage
// owns the envelope it receives outright (spec §3.3) and must not alias
// another stage's metadata pointers.
func (e Envelope) Clone() Envelope {
	out := e
	out.Payload = append([]byte(nil), e.Payload...)
	if e.Metadata.Fragment != nil {
		f := *e.Metadata.Fragment
		out.Metadata.Fragment = &f
	}
	if e.Metadata.Fec != nil {
		f := *e.Metadata.Fec
		f.Lengths = append([]uint32(nil), e.Metadata.Fec.Lengths...)
		out.Metadata.Fec = &f
	}
	if e.Metadata.Crypto != nil {
		c := *e.Metadata.Crypto
		out.Metadata.Crypto = &c
	}
	return out
}
