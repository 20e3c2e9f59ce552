// Package chat implements the server's session engine: the session registry,
// the per-connection request dispatcher, message routing and the inactivity
// monitor. It is shared by all transports.
package chat

import "context"

// Conn abstracts a bidirectional connection for both TCP and WebSocket.
// Each Read and Write carries exactly one encoded envelope; framing is the
// transport's job.
type Conn interface {
	// Read reads a single envelope.
	// Returns io.EOF when the peer closed the connection cleanly.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single envelope.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address as host:port.
	RemoteAddr() string
}

// Handler serves one accepted connection until it ends. Transports call
// Serve in a dedicated goroutine per connection.
type Handler interface {
	Serve(ctx context.Context, conn Conn)
}
