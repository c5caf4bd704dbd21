// Package client implements the chat client's session state machine:
// connect, retry, dispatch inbound messages, and expose send and rename
// operations to the presentation layer.
package client

import (
	"errors"
	"log"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrnul/Chat/internal/chat"
	"github.com/mrnul/Chat/internal/transport/tcp"
	"github.com/mrnul/Chat/internal/transport/ws"
	"github.com/mrnul/Chat/pkg/protocol"
)

const (
	connectTimeout = 1 * time.Second
	retryPause     = 500 * time.Millisecond
	eventQueueSize = 64
)

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("not connected to server")

// DialFunc opens one connection attempt to the server.
type DialFunc func(timeout time.Duration) (chat.Conn, error)

// TCPDialer dials the server's TLS TCP endpoint.
func TCPDialer(addr string, insecure bool) DialFunc {
	return func(timeout time.Duration) (chat.Conn, error) {
		return tcp.Dial(addr, timeout, insecure)
	}
}

// WSDialer dials the server's WebSocket endpoint (ws:// or wss:// URL).
func WSDialer(url string, insecure bool) DialFunc {
	return func(timeout time.Duration) (chat.Conn, error) {
		return ws.Dial(url, timeout, insecure)
	}
}

// Client is the chat client session. Run drives the whole state machine on
// one goroutine: Disconnected -> Connecting -> Connected and back, retrying
// until Shutdown. The presentation layer consumes Events and calls
// SendMessage, SetName and Shutdown; it never shares the session's state.
type Client struct {
	dial    DialFunc
	events  chan Event
	running atomic.Bool

	mu      sync.Mutex
	conn    chat.Conn
	id      string
	name    string
	clients map[string]string
}

// New creates a client that connects via dial and announces name after the
// welcome handshake. An empty name skips the announcement.
func New(dial DialFunc, name string) *Client {
	c := &Client{
		dial:    dial,
		events:  make(chan Event, eventQueueSize),
		name:    name,
		clients: make(map[string]string),
	}
	c.running.Store(true)
	return c
}

// Events returns the channel of session events. It is closed when Run
// returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Run drives the connect/retry/dispatch loop until Shutdown. Callers
// normally run it on its own goroutine.
func (c *Client) Run() {
	defer close(c.events)

	c.emit(StatusEvent{Text: "Initializing..."})

	dots := 0
	for c.running.Load() {
		dots = (dots + 1) % 6
		c.emit(StatusEvent{Text: "Trying to connect" + strings.Repeat(" .", dots)})

		conn, err := c.dial(connectTimeout)
		if err != nil {
			time.Sleep(retryPause)
			continue
		}

		c.emit(StatusEvent{Text: "Connected!", Connected: true})
		c.session(conn)
		dots = 0
	}
}

// Shutdown stops the state machine: the reconnect loop will not run again
// and the current blocking read, if any, is broken by closing the
// connection.
func (c *Client) Shutdown() {
	c.running.Store(false)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// SendMessage sends text to the given recipient identifiers.
func (c *Client) SendMessage(recipients []string, text string, msgID int64) error {
	return c.write(&protocol.Message{
		Recipients: recipients,
		Text:       protocol.String(text),
		MsgID:      msgID,
	})
}

// SetName announces a new display name. The name is remembered and
// re-announced after every reconnect.
func (c *Client) SetName(name string) error {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return c.write(&protocol.Message{Name: protocol.String(name)})
}

// ID returns the identifier assigned by the server, empty until the first
// welcome frame arrives.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Clients returns a copy of the locally cached client list.
func (c *Client) Clients() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.clients)
}

// session serves one established connection: wait for the welcome frame,
// announce the display name, then dispatch inbound messages until the
// stream fails.
func (c *Client) session(conn chat.Conn) {
	defer conn.Close()

	// Expose the connection immediately so Shutdown can break the welcome
	// read below, not just the steady-state reads.
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	// A Shutdown racing the dial may have missed this connection.
	if !c.running.Load() {
		return
	}

	welcome, err := conn.ReadMessage(protocol.MaxMessageSize)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.id = welcome.ID
	name := c.name
	c.mu.Unlock()

	if name != "" {
		if err := conn.WriteMessage(&protocol.Message{Name: protocol.String(name)}); err != nil {
			return
		}
	}

	for {
		msg, err := conn.ReadMessage(protocol.MaxMessageSize)
		if err != nil {
			return
		}
		c.dispatch(msg)
	}
}

// dispatch handles one inbound message. The fields may coexist in a single
// frame; each present field triggers its own emission, list first, then
// presence, then text.
func (c *Client) dispatch(msg *protocol.Message) {
	if msg.Clients != nil {
		fresh := make(map[string]string, len(msg.Clients))
		for _, info := range msg.Clients {
			fresh[info.ID] = info.Name
		}
		c.mu.Lock()
		changed := !maps.Equal(c.clients, fresh)
		if changed {
			c.clients = fresh
		}
		c.mu.Unlock()
		if changed {
			c.emit(ClientListEvent{Clients: maps.Clone(fresh)})
		}
	}

	if msg.Info != "" {
		c.patchClients(msg)
		c.emit(PresenceEvent{Message: *msg})
	}

	if msg.Text != nil {
		c.emit(MessageEvent{Text: *msg.Text, From: msg.From, MsgID: msg.MsgID})
	}
}

// patchClients applies a single presence message to the cached list. The
// cache is only a read model; the server's snapshot stays authoritative.
func (c *Client) patchClients(msg *protocol.Message) {
	if msg.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Info {
	case protocol.PresenceAdd, protocol.PresenceUpdate:
		name := ""
		if msg.Name != nil {
			name = *msg.Name
		}
		c.clients[msg.ID] = name
	case protocol.PresenceDelete:
		delete(c.clients, msg.ID)
	}
}

// write sends one message on the current connection.
func (c *Client) write(msg *protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(msg)
}

// emit delivers an event without ever blocking on the presentation layer.
func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	default:
		log.Printf("event queue full, dropping %T", event)
	}
}
