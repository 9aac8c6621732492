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
	"github.com/aria-sdk/telemetry/pkg/stats"
	"github.com/aria-sdk/telemetry/pkg/transport"
)

// Consumer mirrors Producer: it receives frames off the transport,
// reassembles fragments, and reverses crypto/compress/delta/codec to
// recover the original envelope.
type Consumer struct {
	Transport    transport.Transport
	DeJitter     *ccem.RxDeJitter
	Fec          *fec.Reassembler // nil disables FEC reconstruction
	Defragmenter *packet.Defragmenter
	CryptoBox    *crypto.CryptoBox // nil disables decryption
	CryptoVerify []byte            // verify key, nil uses CryptoBox's own
	Compressor   compress.Compressor
	Delta        *delta.Codec // nil disables delta-inverse
	Counters     *stats.Counters

	nextSeq uint64
}

// NewConsumer builds a Consumer.
func NewConsumer(t transport.Transport, dejitter *ccem.RxDeJitter, defrag *packet.Defragmenter, compressor compress.Compressor, counters *stats.Counters) *Consumer {
	return &Consumer{
		Transport:    t,
		DeJitter:     dejitter,
		Defragmenter: defrag,
		Compressor:   compressor,
		Counters:     counters,
	}
}

// Receive blocks for one frame, reassembles it if needed, and returns
// every fully-decoded envelope the arrival makes available (zero, one,
// or more if de-jitter releases a backlog).
func (c *Consumer) Receive(ctx context.Context) ([]envelope.Envelope, error) {
	_, payload, err := c.Transport.Receive(ctx)
	if err != nil {
		if c.Counters != nil {
			c.Counters.IncTransportDisconnects()
		}
		return nil, errors.Wrap(err, "pipeline: receive")
	}
	if c.Counters != nil {
		c.Counters.IncBytesReceived(uint64(len(payload)))
	}

	wireEnv, err := codec.Decode(payload)
	if err != nil {
		if c.Counters != nil {
			c.Counters.IncBadFrames()
		}
		return nil, nil // malformed frame: drop, count, continue
	}

	seq := c.nextSeq
	c.nextSeq++
	released := c.DeJitter.Arrive(wireEnv, seq)

	var out []envelope.Envelope
	for _, frag := range released {
		for _, unshared := range c.resolveFec(frag) {
			reassembled, err := c.Defragmenter.Defragment(unshared)
			if err != nil {
				if c.Counters != nil {
					if err == packet.ErrInconsistentTotal {
						c.Counters.IncInconsistentTotals()
					} else {
						c.Counters.IncFragmentOverlaps()
					}
				}
				continue
			}
			if reassembled == nil {
				continue
			}
			decoded, err := c.decode(*reassembled)
			if err != nil {
				continue
			}
			out = append(out, decoded)
		}
	}
	if c.Counters != nil {
		c.Counters.IncEnvelopesReceived(uint64(len(out)))
	}
	return out, nil
}

// resolveFec passes frag through FEC block reconstruction when it
// carries FecInfo and FEC is enabled, returning the data fragments the
// block yields (zero while the block awaits more shards). A non-FEC
// fragment, or every fragment when c.Fec is nil, passes through as a
// single-element slice unchanged.
func (c *Consumer) resolveFec(frag envelope.Envelope) []envelope.Envelope {
	if c.Fec == nil || frag.Metadata.Fec == nil {
		return []envelope.Envelope{frag}
	}
	recovered, err := c.Fec.Arrive(frag)
	if err != nil {
		if c.Counters != nil {
			c.Counters.IncFecUnrecoverable()
		}
		return nil
	}
	return recovered
}

// decode reverses crypto, decompression, and delta over a reassembled
// envelope's payload.
func (c *Consumer) decode(env envelope.Envelope) (envelope.Envelope, error) {
	payload := env.Payload

	if c.CryptoBox != nil {
		plain, err := c.CryptoBox.Decrypt(payload, c.CryptoVerify)
		if err != nil {
			if c.Counters != nil {
				if err == crypto.ErrAuthenticationFailed {
					c.Counters.IncCryptoAuthFailed()
				} else {
					c.Counters.IncCryptoDecryptFailed()
				}
			}
			return envelope.Envelope{}, err
		}
		payload = plain
	}

	decompressed, err := c.Compressor.Decompress(payload)
	if err != nil {
		if c.Counters != nil {
			c.Counters.IncCompressionErrors()
		}
		return envelope.Envelope{}, err
	}

	if c.Delta != nil {
		decompressed, err = c.Delta.Decode(decompressed, true)
		if err != nil {
			return envelope.Envelope{}, err
		}
	}

	env.Payload = decompressed
	return env, nil
}
