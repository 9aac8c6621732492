package transport

import "github.com/pkg/errors"

var (
	// ErrDisconnected means the peer closed the connection or a read/write
	// failed at the socket level.
	ErrDisconnected = errors.New("transport: disconnected")
	// ErrFrameTooLarge means a frame's declared length exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")
	// ErrBadFrame means a frame's metadata could not be split/parsed.
	ErrBadFrame = errors.New("transport: malformed frame")
)
