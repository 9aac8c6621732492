package transport

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/pkg/errors"
)

// DialReconnecting connects to addr, retrying with exponential backoff
// (capped at maxBackoff) until success or ctx is canceled.
func DialReconnecting(ctx context.Context, addr string, maxBackoff time.Duration) (*StreamTransport, error) {
	backoff := 100 * time.Millisecond
	for {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return NewStreamTransport(conn), nil
		}
		log.Println("transport: dial failed, retrying:", err)

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "transport: dial canceled")
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
