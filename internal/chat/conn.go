// Package chat provides the core chat logic shared by all transports: the
// server's client registry and router, and the per-connection session loop.
package chat

import "github.com/mrnul/Chat/pkg/protocol"

// Conn abstracts a framed bidirectional connection. The TLS stream and
// WebSocket transports both satisfy it, so registry and session code never
// sees transport details.
type Conn interface {
	// ReadMessage blocks until one complete message arrives. Any error,
	// protocol violation included, means the session is over.
	ReadMessage(maxSize int) (*protocol.Message, error)

	// WriteMessage sends one complete message.
	WriteMessage(msg *protocol.Message) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
