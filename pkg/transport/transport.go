// Package transport implements the length-framed stream wire protocol
// between a producer and consumer, plus the send/receive/close
// plug-point interface other transports could satisfy.
package transport

import (
	"context"
)

// Transport is the minimal plug-point a telemetry producer or consumer
// needs: send a frame, receive a frame, close. It has no connect
// operation; a connection is established before a Transport is built
// (NewStreamTransport, DialReconnecting, Server). Only the
// length-framed stream transport in this package is normative; other
// implementations (datagram, store-and-forward) may satisfy it too.
type Transport interface {
	Send(ctx context.Context, metadata FrameMetadata, payload []byte) error
	Receive(ctx context.Context) (FrameMetadata, []byte, error)
	Close() error
}

// FrameMetadata is the JSON header carried ahead of each frame's
// payload blob.
type FrameMetadata struct {
	EnvelopeID  string `json:"envelope_id"`
	Topic       string `json:"topic"`
	Priority    uint8  `json:"priority"`
	Timestamp   string `json:"timestamp"`
	Compression string `json:"compression"`
	PayloadSize int    `json:"payload_size"`
}
