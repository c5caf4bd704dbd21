package chat

import (
	"errors"
	"io"
	"log"

	"github.com/mrnul/Chat/pkg/protocol"
)

// Session is one connection's read/dispatch loop on the server. It moves
// through three phases: welcoming (identifier, snapshot, add announcement),
// active (decode and dispatch), closed (deregistration).
type Session struct {
	registry *Registry
	conn     Conn
}

// NewSession creates a session for an accepted connection.
func NewSession(registry *Registry, conn Conn) *Session {
	return &Session{registry: registry, conn: conn}
}

// Run registers the connection and serves it until the stream fails or the
// peer violates the protocol. It always deregisters before returning, and no
// further I/O happens on the connection afterward.
func (s *Session) Run() {
	id := s.registry.Register(s.conn)
	log.Printf("+ %s (%d)", id, s.registry.ClientCount())

	defer func() {
		s.registry.Deregister(id)
		log.Printf("- %s (%d)", id, s.registry.ClientCount())
	}()

	s.registry.Welcome(id)

	for {
		msg, err := s.conn.ReadMessage(protocol.MaxMessageSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("session %s: %v", id, err)
			}
			return
		}

		// A frame may carry a rename and a send at once; a frame with
		// neither is a forward-compatible no-op.
		if msg.Name != nil {
			s.registry.Rename(id, *msg.Name)
		}
		if len(msg.Recipients) > 0 {
			s.registry.Route(id, msg.Recipients, msg.Text, msg.MsgID)
		}
	}
}
