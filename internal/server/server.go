// Package server runs the chat server: a TLS TCP listener and an optional
// WebSocket listener feeding one shared client registry.
package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mrnul/Chat/internal/chat"
	"github.com/mrnul/Chat/internal/transport/tcp"
	"github.com/mrnul/Chat/internal/transport/ws"
)

const handshakeTimeout = 10 * time.Second

// Config holds the server's listen configuration.
type Config struct {
	// Addr is the TLS TCP listen address.
	Addr string
	// WSAddr enables a WebSocket listener on this address when non-empty.
	WSAddr string
	// TLS is the server TLS configuration, used by both listeners.
	TLS *tls.Config
}

// Server accepts chat connections and hands each one to a session backed by
// the shared registry.
type Server struct {
	config     Config
	registry   *chat.Registry
	listener   net.Listener
	wsListener net.Listener
	wsServer   *http.Server
	quit       chan struct{}
	wg         sync.WaitGroup
}

// New creates a Server with its own registry.
func New(config Config) *Server {
	return &Server{
		config:   config,
		registry: chat.NewRegistry(),
		quit:     make(chan struct{}),
	}
}

// Start starts the listeners and blocks accepting connections until Stop is
// called. One client's handshake or session failure never halts the accept
// loop.
func (s *Server) Start() error {
	listener, err := tcp.Listen(s.config.Addr, s.config.TLS)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	log.Printf("Server started on %s", listener.Addr().String())

	if s.config.WSAddr != "" {
		if err := s.startWebSocket(); err != nil {
			listener.Close()
			return err
		}
	}

	for {
		select {
		case <-s.quit:
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.quit:
					return nil
				default:
					log.Printf("Failed to accept connection: %v", err)
					continue
				}
			}

			s.wg.Add(1)
			go s.handleConn(conn)
		}
	}
}

// Stop stops the listeners, drops every client and waits for the sessions
// to finish.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.wsServer != nil {
		s.wsServer.Close()
	}
	s.registry.Close()
	s.wg.Wait()
}

// Addr returns the TCP listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// WSAddr returns the WebSocket listening address.
func (s *Server) WSAddr() string {
	if s.wsListener != nil {
		return s.wsListener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of registered clients.
func (s *Server) ClientCount() int {
	return s.registry.ClientCount()
}

// handleConn completes the TLS handshake off the accept loop, then runs the
// session. A handshake failure drops only this connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session panic from %s: %v", conn.RemoteAddr(), r)
			conn.Close()
		}
	}()

	if err := tcp.Handshake(conn, handshakeTimeout); err != nil {
		log.Printf("handshake with %s: %v", conn.RemoteAddr(), err)
		return
	}

	chat.NewSession(s.registry, tcp.NewConn(conn)).Run()
}

// startWebSocket starts the WebSocket listener feeding the same registry.
func (s *Server) startWebSocket() error {
	listener, err := tcp.Listen(s.config.WSAddr, s.config.TLS)
	if err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	s.wsListener = listener
	log.Printf("WebSocket server started on %s", listener.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.wsServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.wsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("WebSocket server error: %v", err)
		}
	}()
	return nil
}

// handleWebSocket upgrades the request and runs the session on the handler
// goroutine.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Upgrade(w, r)
	if err != nil {
		log.Printf("upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("session panic from %s: %v", r.RemoteAddr, rec)
			conn.Close()
		}
	}()

	chat.NewSession(s.registry, conn).Run()
}
