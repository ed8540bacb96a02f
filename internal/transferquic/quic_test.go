package transferquic

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/sheerbytes/bytebridge/internal/transfer"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdvertisedAddr(t *testing.T) {
	tests := []struct {
		addr *net.UDPAddr
		want string
	}{
		{addr: &net.UDPAddr{IP: net.IPv4zero, Port: 4000}, want: "127.0.0.1:4000"},
		{addr: &net.UDPAddr{IP: net.IPv6unspecified, Port: 4000}, want: "127.0.0.1:4000"},
		{addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.5"), Port: 5000}, want: "192.168.1.5:5000"},
	}
	for _, tt := range tests {
		if got := advertisedAddr(tt.addr); got != tt.want {
			t.Errorf("advertisedAddr(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestDial_InvalidID(t *testing.T) {
	n := NewNetwork(Config{Logger: quietLogger()})
	_, err := n.Dial(context.Background(), "not-an-address")
	if !errors.Is(err, transfer.ErrChannelEstablishmentFailed) {
		t.Errorf("Dial() error = %v, want ErrChannelEstablishmentFailed", err)
	}
}

func TestShareOverQUIC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	data := make([]byte, 300*1024+17)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	network := NewNetwork(Config{ListenAddr: "127.0.0.1:0", Logger: quietLogger()})
	sender := transfer.NewSender(transfer.BytesSource("q.bin", "", data), transfer.SenderConfig{
		ChunkSize: 32 * 1024,
		Linger:    5 * time.Second,
		Logger:    quietLogger(),
	})
	id, err := sender.BeginShare(ctx, network)
	if err != nil {
		t.Fatalf("BeginShare() error = %v", err)
	}
	if _, _, err := net.SplitHostPort(id); err != nil {
		t.Fatalf("share id %q is not an address: %v", id, err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- sender.Serve(ctx) }()

	ch, err := network.Dial(ctx, id)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	receiver := transfer.NewReceiver(transfer.ReceiverConfig{Logger: quietLogger()})
	if err := receiver.Receive(ctx, ch); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	ch.Close()

	if err := <-serveErr; err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if sender.State() != transfer.SenderDone {
		t.Errorf("sender State() = %s, want %s", sender.State(), transfer.SenderDone)
	}

	got, err := receiver.Materialize()
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("materialized data does not match source")
	}
}

func TestReceiverSeesSenderHangup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	network := NewNetwork(Config{ListenAddr: "127.0.0.1:0", Logger: quietLogger()})
	l, err := network.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	go func() {
		ch, err := l.Accept(ctx)
		if err != nil {
			return
		}
		_ = ch.Send(ctx, transfer.FileMetadata{Name: "cut.bin", Size: 1000})
		_ = ch.Send(ctx, transfer.FileChunk{Offset: 0, Data: make([]byte, 100)})
		// Let the frames reach the receiver before hanging up.
		time.Sleep(200 * time.Millisecond)
		ch.Close()
	}()

	ch, err := network.Dial(ctx, l.ID())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ch.Close()

	receiver := transfer.NewReceiver(transfer.ReceiverConfig{Logger: quietLogger()})
	err = receiver.Receive(ctx, ch)
	if !errors.Is(err, transfer.ErrChannelClosedMidTransfer) {
		t.Fatalf("Receive() error = %v, want ErrChannelClosedMidTransfer", err)
	}
	if receiver.State() != transfer.Failed {
		t.Errorf("State() = %s, want %s", receiver.State(), transfer.Failed)
	}
}
