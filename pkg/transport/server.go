package transport

import (
	"log"
	"net"

	"github.com/pkg/errors"
)

// Server accepts connections and spawns one independent handler per
// connection, with no shared mutable state beyond metrics.
type Server struct {
	listener net.Listener
	// Handle is invoked once per accepted connection, in its own
	// goroutine. It owns the StreamTransport for the lifetime of the
	// connection and is responsible for closing it.
	Handle func(*StreamTransport)
}

// Listen starts a TCP listener at addr.
func Listen(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen")
	}
	return &Server{listener: lis}, nil
}

// Serve accepts connections until the listener is closed, spawning
// Handle in its own goroutine for each. Any Accept error, including the
// one returned after Close, ends Serve and is returned wrapped; Serve
// does not retry after a failed Accept.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return errors.Wrap(err, "transport: accept")
		}
		log.Println("transport: accepted connection from", conn.RemoteAddr())
		go s.Handle(NewStreamTransport(conn))
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
