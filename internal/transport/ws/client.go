package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/mrnul/Chat/pkg/protocol"
)

// Dial connects to a chat server's WebSocket endpoint (ws:// or wss://).
// The timeout covers only the dial and handshake phase. insecure disables
// server certificate verification for self-signed deployments.
func Dial(url string, timeout time.Duration, insecure bool) (*ClientConn, error) {
	dialer := ws.Dialer{
		Timeout: timeout,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: insecure,
			MinVersion:         tls.VersionTLS12,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &ClientConn{conn: conn}
	if br != nil {
		// The handshake may have buffered the start of the first frame.
		c.rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	} else {
		c.rw = conn
	}
	return c, nil
}

// ClientConn adapts a client-side gobwas WebSocket connection to chat.Conn.
type ClientConn struct {
	conn net.Conn
	rw   io.ReadWriter
}

// ReadMessage implements chat.Conn.
func (c *ClientConn) ReadMessage(maxSize int) (*protocol.Message, error) {
	data, err := wsutil.ReadServerBinary(c.rw)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	if len(data) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", protocol.ErrFrameSize, len(data))
	}
	var msg protocol.Message
	if err := msg.Decode(data); err != nil {
		return nil, err
	}
	return &msg, nil
}

// WriteMessage implements chat.Conn.
func (c *ClientConn) WriteMessage(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := wsutil.WriteClientBinary(c.rw, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close implements chat.Conn.
func (c *ClientConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *ClientConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
