package chat

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mrnul/Chat/pkg/protocol"
)

const (
	// outgoingQueueSize bounds the per-client send queue. When a queue is
	// full the frame is dropped; a peer that never drains eventually fails
	// its own write and gets deregistered.
	outgoingQueueSize = 64

	// maxRecipients caps a single send request. Recipient lists are
	// attacker-controlled input that directly multiplies outbound frames.
	maxRecipients = 1024
)

// record is the registry's view of one connected client.
type record struct {
	id       uuid.UUID
	name     string
	conn     Conn
	outgoing chan *protocol.Message
}

// Registry owns the authoritative mapping from client identifier to display
// name and live connection. All reads and writes are serialized under one
// mutex; the decision of which connections receive a frame is taken under
// the lock, while the actual I/O happens on per-client writer goroutines
// draining the outgoing queues.
type Registry struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*record
	wg      sync.WaitGroup
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uuid.UUID]*record),
	}
}

// Register inserts a new client with a fresh time-ordered identifier and an
// empty name, and starts its writer goroutine. Nothing is announced yet;
// the session sequences the welcome handshake via Welcome.
func (r *Registry) Register(conn Conn) uuid.UUID {
	rec := &record{
		id:       uuid.Must(uuid.NewV7()),
		conn:     conn,
		outgoing: make(chan *protocol.Message, outgoingQueueSize),
	}

	r.mu.Lock()
	r.clients[rec.id] = rec
	r.mu.Unlock()

	r.wg.Add(1)
	go r.writeLoop(rec)

	return rec.id
}

// Welcome sends the new client its own identifier and a full registry
// snapshot, then announces it to everyone with an "add" presence message.
// The three steps happen under one lock acquisition so the snapshot and the
// announcement cannot interleave with other registry changes.
func (r *Registry) Welcome(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.clients[id]
	if !ok {
		return
	}
	rec.enqueue(&protocol.Message{ID: id.String()})
	rec.enqueue(&protocol.Message{Clients: r.snapshotLocked()})
	r.broadcastLocked(rec, protocol.PresenceAdd)
}

// Rename updates a client's display name. Renaming to the current name is a
// no-op; otherwise every client, the renamed one included, receives an
// "update" presence message.
func (r *Registry) Rename(id uuid.UUID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.clients[id]
	if !ok || rec.name == name {
		return
	}
	rec.name = name
	r.broadcastLocked(rec, protocol.PresenceUpdate)
}

// Deregister removes a client, closes its connection and send queue, and
// announces a "delete" presence message to the remaining clients. Calling
// it again for the same identifier is a logged no-op.
func (r *Registry) Deregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.clients[id]
	if !ok {
		log.Printf("deregister %s: not registered", id)
		return
	}
	delete(r.clients, id)
	close(rec.outgoing)
	if err := rec.conn.Close(); err != nil {
		log.Printf("deregister %s: close: %v", id, err)
	}
	r.broadcastLocked(rec, protocol.PresenceDelete)
}

// Route delivers text to each recipient in turn. A registered recipient
// gets a {from, text, msg_id} message; for every unknown one the sender
// gets a delivery failure instead. Duplicates are processed independently
// and an unknown entry never aborts the rest of the list.
func (r *Registry) Route(from uuid.UUID, recipients []string, text *string, msgID int64) {
	delivered := protocol.NoText
	if text != nil {
		delivered = *text
	}
	if len(recipients) > maxRecipients {
		recipients = recipients[:maxRecipients]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sender := r.clients[from]
	for _, recipient := range recipients {
		var target *record
		if rid, err := uuid.Parse(recipient); err == nil {
			target = r.clients[rid]
		}
		if target != nil {
			target.enqueue(&protocol.Message{
				From:  from.String(),
				Text:  protocol.String(delivered),
				MsgID: msgID,
			})
		} else if sender != nil {
			sender.enqueue(&protocol.Message{
				Info:  protocol.DeliveryFailed,
				MsgID: msgID,
			})
		}
	}
}

// Snapshot returns the current client list.
func (r *Registry) Snapshot() []protocol.ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// ClientCount returns the number of registered clients.
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close deregisters every remaining client and waits for the writer
// goroutines to drain.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Deregister(id)
	}
	r.wg.Wait()
}

// snapshotLocked builds the client list. Callers hold r.mu.
func (r *Registry) snapshotLocked() []protocol.ClientInfo {
	clients := make([]protocol.ClientInfo, 0, len(r.clients))
	for _, rec := range r.clients {
		clients = append(clients, protocol.ClientInfo{ID: rec.id.String(), Name: rec.name})
	}
	return clients
}

// broadcastLocked queues a presence message for every registered client.
// Callers hold r.mu; subject may or may not still be in the map.
func (r *Registry) broadcastLocked(subject *record, kind string) {
	msg := &protocol.Message{
		ID:   subject.id.String(),
		Name: protocol.String(subject.name),
		Info: kind,
	}
	for _, rec := range r.clients {
		rec.enqueue(msg)
	}
}

// enqueue queues a message without blocking. Only called while the record
// is still registered, so the channel is never closed underneath it.
func (rec *record) enqueue(msg *protocol.Message) {
	select {
	case rec.outgoing <- msg:
	default:
		log.Printf("client %s queue full, dropping message", rec.id)
	}
}

// writeLoop drains a client's outgoing queue. A write failure closes the
// connection, which wakes the session's blocked read and lets the session
// deregister the client.
func (r *Registry) writeLoop(rec *record) {
	defer r.wg.Done()
	for msg := range rec.outgoing {
		if err := rec.conn.WriteMessage(msg); err != nil {
			log.Printf("failed to send to client %s: %v", rec.id, err)
			rec.conn.Close()
			return
		}
	}
}
