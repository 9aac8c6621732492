package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"

	"github.com/pkg/errors"
)

// MaxFrameSize bounds the total frame (metadata + LF + payload) that
// follows the 4-byte length prefix.
const MaxFrameSize = 16 * 1024 * 1024

// StreamTransport implements the normative length-framed stream
// protocol over any net.Conn (TCP, unix socket, TLS, ...).
type StreamTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewStreamTransport wraps an already-established connection.
func NewStreamTransport(conn net.Conn) *StreamTransport {
	return &StreamTransport{conn: conn, r: bufio.NewReader(conn)}
}

// Send writes one length-framed message: a 4-byte big-endian length
// prefix, the JSON metadata header, an LF, then the payload blob.
func (t *StreamTransport) Send(ctx context.Context, meta FrameMetadata, payload []byte) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "transport: marshal metadata")
	}

	frame := make([]byte, 0, len(metaJSON)+1+len(payload))
	frame = append(frame, metaJSON...)
	frame = append(frame, '\n')
	frame = append(frame, payload...)

	if len(frame) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(dl)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(frame)))
	if _, err := t.conn.Write(lenPrefix[:]); err != nil {
		return errors.Wrap(ErrDisconnected, err.Error())
	}
	if _, err := t.conn.Write(frame); err != nil {
		return errors.Wrap(ErrDisconnected, err.Error())
	}
	return nil
}

// Receive reads exactly one length-framed message: 4 bytes of length,
// then that many bytes, split on the first LF into metadata and
// payload. Any short read or malformed frame terminates the connection
// at this layer rather than attempting to resynchronize.
func (t *StreamTransport) Receive(ctx context.Context) (FrameMetadata, []byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(dl)
	}

	var lenPrefix [4]byte
	if _, err := io.ReadFull(t.r, lenPrefix[:]); err != nil {
		return FrameMetadata{}, nil, errors.Wrap(ErrDisconnected, err.Error())
	}
	length := binary.BigEndian.Uint32(lenPrefix[:])
	if length > MaxFrameSize {
		return FrameMetadata{}, nil, ErrFrameTooLarge
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(t.r, frame); err != nil {
		return FrameMetadata{}, nil, errors.Wrap(ErrDisconnected, err.Error())
	}

	idx := -1
	for i, b := range frame {
		if b == '\n' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return FrameMetadata{}, nil, ErrBadFrame
	}

	var meta FrameMetadata
	if err := json.Unmarshal(frame[:idx], &meta); err != nil {
		return FrameMetadata{}, nil, errors.Wrap(ErrBadFrame, err.Error())
	}
	payload := frame[idx+1:]
	return meta, payload, nil
}

// Close tears down the underlying connection.
func (t *StreamTransport) Close() error {
	return t.conn.Close()
}
