package chat_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mrnul/Chat/internal/chat"
	"github.com/mrnul/Chat/pkg/protocol"
)

var errConnClosed = errors.New("connection closed")

// mockConn is an in-memory chat.Conn. Messages written by the registry land
// on sent; the session under test reads scripted messages from reads.
type mockConn struct {
	sent   chan *protocol.Message
	reads  chan *protocol.Message
	closed chan struct{}
	once   sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		sent:   make(chan *protocol.Message, 32),
		reads:  make(chan *protocol.Message, 32),
		closed: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage(maxSize int) (*protocol.Message, error) {
	select {
	case msg, ok := <-m.reads:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-m.closed:
		return nil, io.EOF
	}
}

func (m *mockConn) WriteMessage(msg *protocol.Message) error {
	select {
	case <-m.closed:
		return errConnClosed
	default:
	}
	select {
	case m.sent <- msg:
		return nil
	default:
		return errors.New("mock send buffer full")
	}
}

func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) RemoteAddr() string { return "mock" }

// isClosed reports whether Close has been called.
func (m *mockConn) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// waitMessage returns the next message the registry delivered to m, failing
// the test after a timeout. Delivery is asynchronous via the per-client
// writer goroutine.
func waitMessage(t *testing.T, m *mockConn) *protocol.Message {
	t.Helper()
	select {
	case msg := <-m.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// expectNoMessage fails the test if m receives a message within the grace
// period.
func expectNoMessage(t *testing.T, m *mockConn) {
	t.Helper()
	select {
	case msg := <-m.sent:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

var _ chat.Conn = (*mockConn)(nil)
