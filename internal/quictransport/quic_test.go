package quictransport

import (
	"context"
	"crypto/x509"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"
)

func TestServerConfig(t *testing.T) {
	config, err := ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig() error = %v", err)
	}
	if len(config.Certificates) == 0 {
		t.Fatal("ServerConfig has no certificates")
	}
	if !slices.Contains(config.NextProtos, ALPNProtocol) {
		t.Errorf("NextProtos = %v, want %s", config.NextProtos, ALPNProtocol)
	}

	cert := config.Certificates[0]
	if cert.PrivateKey == nil {
		t.Error("certificate has no private key")
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}
	if time.Now().After(parsed.NotAfter) || time.Now().Before(parsed.NotBefore) {
		t.Errorf("certificate not valid now: %v - %v", parsed.NotBefore, parsed.NotAfter)
	}
}

func TestClientConfig(t *testing.T) {
	config := ClientConfig()
	if !config.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be true")
	}
	if !slices.Contains(config.NextProtos, ALPNProtocol) {
		t.Errorf("NextProtos = %v, want %s", config.NextProtos, ALPNProtocol)
	}
}

func TestListenDial(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ln, err := Listen("127.0.0.1:0", Windows{}, logger)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err == nil {
			defer conn.CloseWithError(0, "")
			<-conn.Context().Done()
		}
		accepted <- err
	}()

	conn, err := Dial(ctx, ln.Addr().String(), Windows{}, logger)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if got := conn.ConnectionState().TLS.NegotiatedProtocol; got != ALPNProtocol {
		t.Errorf("NegotiatedProtocol = %q, want %q", got, ALPNProtocol)
	}
	conn.CloseWithError(0, "")

	if err := <-accepted; err != nil {
		t.Errorf("Accept() error = %v", err)
	}
}
