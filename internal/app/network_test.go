package app

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sheerbytes/bytebridge/internal/config"
	"github.com/sheerbytes/bytebridge/internal/registry"
	"github.com/sheerbytes/bytebridge/internal/rendezvous"
	"github.com/sheerbytes/bytebridge/internal/transferwebrtc"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenNetworkQUIC(t *testing.T) {
	cfg := config.ClientConfig{Transport: config.TransportQUIC, ChunkSize: 1 << 20, ListenAddr: "127.0.0.1:0"}
	n, err := OpenNetwork(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("OpenNetwork: %v", err)
	}
	defer n.Close()
	if n.ChunkSize != 1<<20 {
		t.Fatalf("expected chunk size kept for quic, got %d", n.ChunkSize)
	}
	if n.Signaling != nil || n.SignalingDone() != nil {
		t.Fatal("expected no signaling connection for quic")
	}
}

func TestOpenNetworkWebRTCClampsChunkSize(t *testing.T) {
	srv := rendezvous.NewServer(registry.New(), rendezvous.ServerConfig{Logger: quietLogger()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.ClientConfig{Transport: config.TransportWebRTC, ServerURL: ts.URL, ChunkSize: 1 << 20}
	n, err := OpenNetwork(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("OpenNetwork: %v", err)
	}
	if n.ChunkSize != transferwebrtc.MaxChunkSize {
		t.Fatalf("expected chunk size %d, got %d", transferwebrtc.MaxChunkSize, n.ChunkSize)
	}
	if n.Signaling == nil {
		t.Fatal("expected a signaling connection")
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-n.SignalingDone():
	case <-time.After(2 * time.Second):
		t.Fatal("signaling connection still open after Close")
	}
}

func TestOpenNetworkUnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := config.ClientConfig{Transport: config.TransportWebRTC, ServerURL: "http://127.0.0.1:1", ChunkSize: 1024}
	if _, err := OpenNetwork(ctx, cfg, quietLogger()); err == nil {
		t.Fatal("expected error for unreachable rendezvous server")
	}
}

func TestOpenNetworkUnknownTransport(t *testing.T) {
	cfg := config.ClientConfig{Transport: "carrier-pigeon"}
	if _, err := OpenNetwork(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
