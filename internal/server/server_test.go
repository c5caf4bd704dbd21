package server_test

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/mrnul/Chat/internal/server"
	"github.com/mrnul/Chat/internal/transport/tcp"
	"github.com/mrnul/Chat/pkg/protocol"
)

// startServer starts a server with an ephemeral certificate and waits for
// the listener to come up.
func startServer(t *testing.T, wsAddr string) *server.Server {
	t.Helper()

	cert, err := tcp.GenerateSelfSigned("127.0.0.1")
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	srv := server.New(server.Config{
		Addr:   "127.0.0.1:0",
		WSAddr: wsAddr,
		TLS:    tcp.ServerConfig(cert),
	})
	go func() {
		_ = srv.Start()
	}()
	t.Cleanup(srv.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv
}

// connect dials the server and consumes the welcome handshake, returning
// the connection, the assigned identifier and the snapshot.
func connect(t *testing.T, srv *server.Server) (*tcp.Conn, string, []protocol.ClientInfo) {
	t.Helper()

	conn, err := tcp.Dial(srv.Addr(), 2*time.Second, true)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	welcome, err := conn.ReadMessage(protocol.MaxMessageSize)
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.ID == "" {
		t.Fatal("welcome frame has no id")
	}

	snapshot, err := conn.ReadMessage(protocol.MaxMessageSize)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return conn, welcome.ID, snapshot.Clients
}

// readUntil reads messages until match reports true, skipping unrelated
// presence traffic.
func readUntil(t *testing.T, conn *tcp.Conn, match func(*protocol.Message) bool) *protocol.Message {
	t.Helper()

	done := make(chan *protocol.Message, 1)
	go func() {
		for {
			msg, err := conn.ReadMessage(protocol.MaxMessageSize)
			if err != nil {
				return
			}
			if match(msg) {
				done <- msg
				return
			}
		}
	}()

	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestServer_WelcomeAndPresence(t *testing.T) {
	srv := startServer(t, "")

	connA, idA, snapshotA := connect(t, srv)
	if len(snapshotA) != 1 || snapshotA[0].ID != idA {
		t.Errorf("first snapshot = %+v, want only %s", snapshotA, idA)
	}

	_, idB, snapshotB := connect(t, srv)
	if len(snapshotB) != 2 {
		t.Errorf("second snapshot has %d entries, want 2", len(snapshotB))
	}

	added := readUntil(t, connA, func(m *protocol.Message) bool {
		return m.Info == protocol.PresenceAdd && m.ID == idB
	})
	if added.Name == nil || *added.Name != "" {
		t.Errorf("added presence name = %v, want empty", added.Name)
	}

	if got := srv.ClientCount(); got != 2 {
		t.Errorf("ClientCount() = %d, want 2", got)
	}
}

func TestServer_RoutesBetweenClients(t *testing.T) {
	srv := startServer(t, "")

	connA, idA, _ := connect(t, srv)
	connB, idB, _ := connect(t, srv)

	err := connA.WriteMessage(&protocol.Message{
		Recipients: protocol.RecipientList{idB},
		Text:       protocol.String("hi"),
		MsgID:      1,
	})
	if err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	delivered := readUntil(t, connB, func(m *protocol.Message) bool {
		return m.Text != nil
	})
	if *delivered.Text != "hi" || delivered.From != idA || delivered.MsgID != 1 {
		t.Errorf("delivered = %+v, want hi from %s msg 1", delivered, idA)
	}
}

func TestServer_ReportsUnknownRecipient(t *testing.T) {
	srv := startServer(t, "")

	connA, _, _ := connect(t, srv)

	err := connA.WriteMessage(&protocol.Message{
		Recipients: protocol.RecipientList{"not-a-registered-id"},
		Text:       protocol.String("hi"),
		MsgID:      7,
	})
	if err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	failure := readUntil(t, connA, func(m *protocol.Message) bool {
		return m.Info == protocol.DeliveryFailed
	})
	if failure.MsgID != 7 {
		t.Errorf("failure MsgID = %d, want 7", failure.MsgID)
	}
}

func TestServer_RenamePropagates(t *testing.T) {
	srv := startServer(t, "")

	connA, idA, _ := connect(t, srv)
	connB, _, _ := connect(t, srv)

	if err := connA.WriteMessage(&protocol.Message{Name: protocol.String("alice")}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	update := readUntil(t, connB, func(m *protocol.Message) bool {
		return m.Info == protocol.PresenceUpdate && m.ID == idA
	})
	if update.Name == nil || *update.Name != "alice" {
		t.Errorf("update name = %v, want alice", update.Name)
	}
}

func TestServer_ProtocolViolationDropsConnection(t *testing.T) {
	srv := startServer(t, "")

	raw, err := tls.Dial("tcp", srv.Addr(), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("tls.Dial() error = %v", err)
	}
	defer raw.Close()

	welcome, err := protocol.ReadMessage(raw, protocol.MaxMessageSize)
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	idA := welcome.ID
	if _, err := protocol.ReadMessage(raw, protocol.MaxMessageSize); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	connB, _, _ := connect(t, srv)

	// A zero-length frame declaration terminates the offending session only.
	if _, err := raw.Write([]byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	departed := readUntil(t, connB, func(m *protocol.Message) bool {
		return m.Info == protocol.PresenceDelete && m.ID == idA
	})
	if departed == nil {
		t.Fatal("no delete presence after protocol violation")
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want 1 after violation", srv.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
