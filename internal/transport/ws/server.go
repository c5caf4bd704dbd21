// Package ws provides a WebSocket transport for the chat protocol. The
// WebSocket layer already frames messages, so each binary message carries
// one JSON payload with no length prefix inside.
package ws

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mrnul/Chat/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Browser clients connect from arbitrary origins.
	},
}

// Upgrade upgrades an HTTP request to a WebSocket chat connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*ServerConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return &ServerConn{conn: conn}, nil
}

// ServerConn adapts a server-side gorilla WebSocket connection to chat.Conn.
type ServerConn struct {
	conn *websocket.Conn
}

// ReadMessage implements chat.Conn. Control frames and non-binary messages
// are skipped; the read limit enforces the protocol size cap.
func (c *ServerConn) ReadMessage(maxSize int) (*protocol.Message, error) {
	c.conn.SetReadLimit(int64(maxSize))
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		var msg protocol.Message
		if err := msg.Decode(data); err != nil {
			return nil, err
		}
		return &msg, nil
	}
}

// WriteMessage implements chat.Conn.
func (c *ServerConn) WriteMessage(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close implements chat.Conn.
func (c *ServerConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *ServerConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
