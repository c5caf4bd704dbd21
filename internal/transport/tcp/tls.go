package tcp

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrDecodeKey is returned when a private key PEM block cannot be decoded.
var ErrDecodeKey = errors.New("failed to decode private key PEM")

// Dial opens a TCP connection to addr and performs the TLS client
// handshake. The timeout covers only the connect phase, handshake included;
// once established the connection blocks indefinitely on reads. insecure
// disables server certificate verification for self-signed deployments.
// On failure no partially open socket leaks.
func Dial(addr string, timeout time.Duration, insecure bool) (*Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		InsecureSkipVerify: insecure,
		MinVersion:         tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewConn(conn), nil
}

// Listen binds addr and wraps the listener with the given TLS config. The
// server handshake for each accepted connection is completed by Handshake,
// off the accept loop.
func Listen(addr string, config *tls.Config) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return tls.NewListener(listener, config), nil
}

// Handshake completes the server-side TLS handshake for an accepted
// connection, bounded by timeout so a stalled peer cannot pin a goroutine
// forever. A failure closes the connection.
func Handshake(conn net.Conn, timeout time.Duration) error {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil
	}
	if err := tlsConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return fmt.Errorf("tls handshake failed: %w", err)
	}
	if err := tlsConn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to clear handshake deadline: %w", err)
	}
	return nil
}

// LoadCertificate loads a server certificate and private key from PEM
// files. password decrypts a legacy encrypted key PEM; leave it empty for
// an unencrypted key.
func LoadCertificate(certFile, keyFile, password string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read private key: %w", err)
	}

	if password != "" {
		keyPEM, err = decryptKeyPEM(keyPEM, password)
		if err != nil {
			return tls.Certificate{}, err
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load key pair: %w", err)
	}
	return cert, nil
}

// ServerConfig builds the TLS config used by the listening side.
func ServerConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

// decryptKeyPEM decrypts a PEM-encrypted private key block and re-encodes
// it unencrypted so tls.X509KeyPair can parse it.
func decryptKeyPEM(keyPEM []byte, password string) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, ErrDecodeKey
	}
	// RFC 1423 encryption, the format openssl uses for passworded keys.
	der, err := x509.DecryptPEMBlock(block, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}
