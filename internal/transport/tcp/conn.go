// Package tcp provides the TLS-over-TCP transport for the chat protocol.
package tcp

import (
	"net"

	"github.com/mrnul/Chat/pkg/protocol"
)

// Conn adapts a net.Conn (normally a *tls.Conn) to chat.Conn, applying the
// length-prefixed frame codec.
type Conn struct {
	conn net.Conn
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// ReadMessage implements chat.Conn.
func (c *Conn) ReadMessage(maxSize int) (*protocol.Message, error) {
	return protocol.ReadMessage(c.conn, maxSize)
}

// WriteMessage implements chat.Conn.
func (c *Conn) WriteMessage(msg *protocol.Message) error {
	return protocol.WriteMessage(c.conn, msg)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
