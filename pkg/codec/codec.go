// Package codec implements the bit-exact wire format for envelopes: a
// length-prefixed, big-endian binary layout that round-trips every field
// including the verbatim timestamp string and the optional fragment
// metadata. The codec is stateless -- Encode and Decode allocate nothing
// beyond the buffers they return and never retain a reference to their
// argument.
package codec

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/aria-sdk/telemetry/pkg/envelope"
)

const (
	magicHi = 0xAA
	magicLo = 0xBB
	version = 0x01

	maxTopicLen     = 65535 // capped by the uint16 topic_len field itself
	maxSourceLen    = 65535 // capped by the uint16 src_len field itself
	maxPayloadLen   = 2 * 1024 * 1024 * 1024
	maxTimestampLen = 256

	fragmentRecordSize = 4 + 4 + 4 + 4 + 16
)

// Encode serializes env into the normative wire format: magic, version,
// body length, then the body fields in order. It never fails on a valid
// Envelope -- field caps are
// enforced on Decode, and the caller is responsible for keeping fields
// within the documented limits.
func Encode(env envelope.Envelope) []byte {
	ts := []byte(env.Timestamp)
	topic := []byte(env.Topic)
	src := []byte(env.Metadata.SourceNode)

	bodyLen := 16 + 2 + len(ts) + 4 + 1 + 2 + len(topic) + 4 + len(env.Payload) +
		2 + len(src) + 4 + 1
	if env.Metadata.Fragment != nil {
		bodyLen += fragmentRecordSize
	}

	buf := make([]byte, 7+bodyLen)
	buf[0] = magicHi
	buf[1] = magicLo
	buf[2] = version
	binary.BigEndian.PutUint32(buf[3:7], uint32(bodyLen))

	off := 7
	idBytes, _ := env.ID.MarshalBinary()
	copy(buf[off:off+16], idBytes)
	off += 16

	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(ts)))
	off += 2
	copy(buf[off:off+len(ts)], ts)
	off += len(ts)

	binary.BigEndian.PutUint32(buf[off:off+4], env.SchemaID)
	off += 4

	buf[off] = byte(env.Priority)
	off++

	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(topic)))
	off += 2
	copy(buf[off:off+len(topic)], topic)
	off += len(topic)

	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(env.Payload)))
	off += 4
	copy(buf[off:off+len(env.Payload)], env.Payload)
	off += len(env.Payload)

	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(src)))
	off += 2
	copy(buf[off:off+len(src)], src)
	off += len(src)

	binary.BigEndian.PutUint32(buf[off:off+4], env.Metadata.SequenceNumber)
	off += 4

	if frag := env.Metadata.Fragment; frag != nil {
		buf[off] = 1
		off++
		binary.BigEndian.PutUint32(buf[off:off+4], frag.FragmentID)
		off += 4
		binary.BigEndian.PutUint32(buf[off:off+4], frag.TotalFragments)
		off += 4
		binary.BigEndian.PutUint32(buf[off:off+4], frag.Offset)
		off += 4
		binary.BigEndian.PutUint32(buf[off:off+4], frag.Length)
		off += 4
		msgBytes, _ := frag.MessageID.MarshalBinary()
		copy(buf[off:off+16], msgBytes)
		off += 16
	} else {
		buf[off] = 0
		off++
	}

	return buf
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Decode parses the normative wire format produced by Encode. Malformed
// input never panics or corrupts caller state -- every failure mode
// returns one of the typed errors in errors.go.
func Decode(data []byte) (envelope.Envelope, error) {
	var env envelope.Envelope

	if len(data) < 7 {
		return env, ErrTruncated
	}
	if data[0] != magicHi || data[1] != magicLo {
		return env, ErrBadMagic
	}
	if data[2] != version {
		return env, ErrUnsupportedVersion
	}
	bodyLen := binary.BigEndian.Uint32(data[3:7])
	if uint32(len(data)-7) < bodyLen {
		return env, ErrTruncated
	}

	r := &reader{buf: data[7 : 7+int(bodyLen)]}

	idBytes, err := r.take(16)
	if err != nil {
		return env, err
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return env, errors.Wrap(ErrTruncated, "envelope id")
	}
	env.ID = id

	tsLen, err := r.uint16()
	if err != nil {
		return env, err
	}
	if tsLen > maxTimestampLen {
		return env, ErrOversizedField
	}
	ts, err := r.take(int(tsLen))
	if err != nil {
		return env, err
	}
	env.Timestamp = string(ts)

	schemaID, err := r.uint32()
	if err != nil {
		return env, err
	}
	env.SchemaID = schemaID

	pb, err := r.byte()
	if err != nil {
		return env, err
	}
	if pb > 3 {
		return env, errors.Wrap(ErrOversizedField, "priority")
	}
	env.Priority = envelope.Priority(pb)

	topicLen, err := r.uint16()
	if err != nil {
		return env, err
	}
	if topicLen > maxTopicLen {
		return env, ErrOversizedField
	}
	topic, err := r.take(int(topicLen))
	if err != nil {
		return env, err
	}
	env.Topic = string(topic)

	payloadLen, err := r.uint32()
	if err != nil {
		return env, err
	}
	if payloadLen > maxPayloadLen {
		return env, ErrOversizedField
	}
	payload, err := r.take(int(payloadLen))
	if err != nil {
		return env, err
	}
	env.Payload = append([]byte(nil), payload...)

	srcLen, err := r.uint16()
	if err != nil {
		return env, err
	}
	if srcLen > maxSourceLen {
		return env, ErrOversizedField
	}
	src, err := r.take(int(srcLen))
	if err != nil {
		return env, err
	}
	env.Metadata.SourceNode = string(src)

	seq, err := r.uint32()
	if err != nil {
		return env, err
	}
	env.Metadata.SequenceNumber = seq

	hasFrag, err := r.byte()
	if err != nil {
		return env, err
	}
	if hasFrag == 1 {
		fragID, err := r.uint32()
		if err != nil {
			return env, err
		}
		total, err := r.uint32()
		if err != nil {
			return env, err
		}
		fragOff, err := r.uint32()
		if err != nil {
			return env, err
		}
		fragLen, err := r.uint32()
		if err != nil {
			return env, err
		}
		msgIDBytes, err := r.take(16)
		if err != nil {
			return env, err
		}
		msgID, err := uuid.FromBytes(msgIDBytes)
		if err != nil {
			return env, errors.Wrap(ErrTruncated, "fragment message id")
		}
		env.Metadata.Fragment = &envelope.FragmentInfo{
			FragmentID:     fragID,
			TotalFragments: total,
			Offset:         fragOff,
			Length:         fragLen,
			MessageID:      msgID,
		}
	} else if hasFrag != 0 {
		return env, errors.Wrap(ErrOversizedField, "has_frag flag")
	}

	return env, nil
}
