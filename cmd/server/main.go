package main

import (
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrnul/Chat/internal/server"
	"github.com/mrnul/Chat/internal/transport/tcp"
)

func main() {
	addr := flag.String("addr", ":16000", "TLS TCP listen address")
	wsAddr := flag.String("ws-addr", "", "WebSocket listen address (disabled when empty)")
	certFile := flag.String("cert", "", "Path to the server certificate PEM")
	keyFile := flag.String("key", "", "Path to the server private key PEM")
	keyPassword := flag.String("key-password", "", "Password of the private key, if encrypted")
	selfSigned := flag.Bool("selfsigned", false, "Generate an ephemeral self-signed certificate")
	flag.Parse()

	var cert tls.Certificate
	var err error
	switch {
	case *selfSigned:
		cert, err = tcp.GenerateSelfSigned("localhost")
	case *certFile != "" && *keyFile != "":
		cert, err = tcp.LoadCertificate(*certFile, *keyFile, *keyPassword)
	default:
		log.Fatal("Either -cert and -key or -selfsigned is required")
	}
	if err != nil {
		log.Fatalf("Failed to load certificate: %v", err)
	}

	srv := server.New(server.Config{
		Addr:   *addr,
		WSAddr: *wsAddr,
		TLS:    tcp.ServerConfig(cert),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		srv.Stop()
	}

	log.Println("Server stopped")
}
