// Package pipeline wires the component stages into two linear
// compositions: a producer chain (envelope payload -> delta ->
// compress -> crypto -> packetize -> FEC -> QoS -> CCEM TX -> codec
// -> transport) and its consumer-side mirror.
package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aria-sdk/telemetry/pkg/ccem"
	"github.com/aria-sdk/telemetry/pkg/codec"
	"github.com/aria-sdk/telemetry/pkg/compress"
	"github.com/aria-sdk/telemetry/pkg/crypto"
	"github.com/aria-sdk/telemetry/pkg/delta"
	"github.com/aria-sdk/telemetry/pkg/envelope"
	"github.com/aria-sdk/telemetry/pkg/fec"
	"github.com/aria-sdk/telemetry/pkg/packet"
	"github.com/aria-sdk/telemetry/pkg/qos"
	"github.com/aria-sdk/telemetry/pkg/stats"
	"github.com/aria-sdk/telemetry/pkg/transport"
)

// Producer runs one envelope at a time through optional delta,
// compression, optional crypto, and packetization, enqueues the
// fragments on the QoS shaper, and codec-encodes each fragment as it
// is dequeued for the transport. Not safe
// for concurrent use; one Producer owns its stage state exclusively,
// one Producer owns its stage state exclusively.
type Producer struct {
	Delta       *delta.Codec // nil disables delta
	Compressor  compress.Compressor
	CryptoBox   *crypto.CryptoBox // nil disables encryption
	Packetizer  *packet.Packetizer
	Fec         *fec.Codec    // nil disables FEC
	FecAdaptive *fec.Adaptive // if set, takes precedence over Fec and is re-consulted per block
	Shaper      *qos.Shaper
	Pacer       *ccem.TxPacer
	Transport   transport.Transport
	Counters    *stats.Counters

	compressionName string
	nextBlockID     uint32
}

// NewProducer builds a Producer. compressionName is surfaced verbatim
// in each frame's metadata header.
func NewProducer(compressionName string, compressor compress.Compressor, packetizer *packet.Packetizer, shaper *qos.Shaper, pacer *ccem.TxPacer, t transport.Transport, counters *stats.Counters) *Producer {
	return &Producer{
		Compressor:      compressor,
		Packetizer:      packetizer,
		Shaper:          shaper,
		Pacer:           pacer,
		Transport:       t,
		Counters:        counters,
		compressionName: compressionName,
	}
}

// Submit transforms env's payload (delta, compress, crypto) and
// packetizes the result, enqueuing every fragment on the QoS shaper.
// Returns false if any fragment was rejected for exceeding its
// class's queue capacity; the accepted fragments are still enqueued.
func (p *Producer) Submit(env envelope.Envelope) (bool, error) {
	transformed, err := p.transform(env.Payload)
	if err != nil {
		return false, err
	}

	staged := env
	staged.Payload = transformed

	frags, err := p.applyFec(p.Packetizer.Packetize(staged))
	if err != nil {
		return false, errors.Wrap(err, "pipeline: fec encode")
	}

	accepted := true
	for _, frag := range frags {
		if !p.Shaper.Enqueue(frag) {
			accepted = false
			if p.Counters != nil {
				p.Counters.IncQoSDropped(int(frag.Priority))
			}
		}
	}
	return accepted, nil
}

// applyFec wraps one message's fragments into a single Reed-Solomon
// block, when FEC is configured. A fixed *fec.Codec applies uniformly;
// an *fec.Adaptive re-derives its current codec per block so a change
// in loss rate takes effect on the next message.
func (p *Producer) applyFec(frags []envelope.Envelope) ([]envelope.Envelope, error) {
	var fecCodec *fec.Codec
	switch {
	case p.FecAdaptive != nil:
		fecCodec = p.FecAdaptive.Current()
	case p.Fec != nil:
		fecCodec = p.Fec
	default:
		return frags, nil
	}
	if fecCodec.K() != len(frags) {
		// FEC operates over the k fragments of exactly one message;
		// rebuild a codec sized to this message's fragment count.
		sized, err := fec.New(len(frags), fecCodec.M())
		if err != nil {
			return nil, err
		}
		fecCodec = sized
	}
	blockID := p.nextBlockID
	p.nextBlockID++
	return fec.EncodeFragments(frags, fecCodec, blockID)
}

// transform runs the delta/compress/crypto chain over a raw payload.
func (p *Producer) transform(payload []byte) ([]byte, error) {
	if p.Delta != nil {
		payload, _ = p.Delta.Encode(payload)
	}

	compressed, err := p.Compressor.Compress(payload)
	if err != nil {
		if p.Counters != nil {
			p.Counters.IncCompressionErrors()
		}
		return nil, errors.Wrap(err, "pipeline: compress")
	}

	if p.CryptoBox != nil {
		compressed, err = p.CryptoBox.Encrypt(compressed)
		if err != nil {
			return nil, errors.Wrap(err, "pipeline: encrypt")
		}
	}
	return compressed, nil
}

// Pump drains the QoS shaper and transmits each eligible fragment over
// the transport, pacing emissions with the CCEM TX pacer. Each
// fragment is codec-encoded to wire bytes immediately before send, so
// FragmentInfo travels with it. Runs until ctx is canceled.
func (p *Producer) Pump(ctx context.Context) error {
	for {
		frag, ok := p.Shaper.DequeueWait(ctx, pumpWaitTimeout)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err := p.Pacer.Pace(ctx); err != nil {
			return err
		}

		wire := codec.Encode(frag)
		meta := transport.FrameMetadata{
			EnvelopeID:  frag.ID.String(),
			Topic:       frag.Topic,
			Priority:    uint8(frag.Priority),
			Timestamp:   frag.Timestamp,
			Compression: p.compressionName,
			PayloadSize: len(frag.Payload),
		}
		if err := p.Transport.Send(ctx, meta, wire); err != nil {
			return errors.Wrap(err, "pipeline: send")
		}
		if p.Counters != nil {
			p.Counters.IncEnvelopesSent(1)
			p.Counters.IncBytesSent(uint64(len(wire)))
		}
	}
}
