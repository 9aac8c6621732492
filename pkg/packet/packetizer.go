// Package packet implements MTU-bounded fragmentation and per-message
// reassembly, grounded on the reassembly/GC bookkeeping shape of the
// original ARIA SDK's packetization module, reimplemented as synchronous
// Go functions over owned state.
package packet

import (
	"github.com/google/uuid"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

// DefaultHeaderReserve approximates the non-payload bytes of the wire
// envelope (ids, timestamp, topic, sequencing, fragment header).
const DefaultHeaderReserve = 100

// Packetizer splits an envelope's payload into MTU-sized fragments.
type Packetizer struct {
	payloadBudget int
}

// NewPacketizer builds a Packetizer for the given MTU (>= 64) and
// headerReserve, the non-payload bytes budgeted per fragment. Returns
// an error if mtu does not leave a positive payload budget.
func NewPacketizer(mtu, headerReserve int) (*Packetizer, error) {
	if mtu < 64 {
		return nil, errMTUTooSmall
	}
	if mtu <= headerReserve {
		return nil, errHeaderReserveExceedsMTU
	}
	return &Packetizer{payloadBudget: mtu - headerReserve}, nil
}

// Packetize fragments env if its payload exceeds the MTU budget. When the
// payload fits in one fragment, packetization is the identity: the
// returned slice has exactly one element, a copy of env with no
// FragmentInfo attached.
func (p *Packetizer) Packetize(env envelope.Envelope) []envelope.Envelope {
	size := len(env.Payload)
	if size <= p.payloadBudget {
		return []envelope.Envelope{env.Clone()}
	}

	messageID := uuid.New()
	total := (size + p.payloadBudget - 1) / p.payloadBudget

	frags := make([]envelope.Envelope, 0, total)
	for i := 0; i < total; i++ {
		off := i * p.payloadBudget
		end := off + p.payloadBudget
		if end > size {
			end = size
		}

		frag := envelope.Envelope{
			ID:        uuid.New(),
			Timestamp: env.Timestamp,
			SchemaID:  env.SchemaID,
			Priority:  env.Priority,
			Topic:     env.Topic,
			Payload:   append([]byte(nil), env.Payload[off:end]...),
			Metadata: envelope.Metadata{
				SourceNode:     env.Metadata.SourceNode,
				SequenceNumber: env.Metadata.SequenceNumber,
				Fragment: &envelope.FragmentInfo{
					FragmentID:     uint32(i),
					TotalFragments: uint32(total),
					Offset:         uint32(off),
					Length:         uint32(end - off),
					MessageID:      messageID,
				},
			},
		}
		frags = append(frags, frag)
	}
	return frags
}
