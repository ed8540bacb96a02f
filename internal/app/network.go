// Package app wires configuration to the transfer networks used by the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sheerbytes/bytebridge/internal/config"
	"github.com/sheerbytes/bytebridge/internal/rendezvous"
	"github.com/sheerbytes/bytebridge/internal/transfer"
	"github.com/sheerbytes/bytebridge/internal/transferquic"
	"github.com/sheerbytes/bytebridge/internal/transferwebrtc"
)

// Network is a transfer network together with the resources it holds.
type Network struct {
	transfer.Network
	// ChunkSize is the configured chunk size clamped to what the transport carries.
	ChunkSize int
	// Signaling is the rendezvous connection of a webrtc network, nil for quic.
	Signaling *rendezvous.Client
}

// OpenNetwork builds the network selected by cfg.Transport. For webrtc it
// connects to the rendezvous server first.
func OpenNetwork(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (*Network, error) {
	switch cfg.Transport {
	case config.TransportQUIC:
		qn := transferquic.NewNetwork(transferquic.Config{
			ListenAddr:    cfg.ListenAddr,
			AdvertiseAddr: cfg.AdvertiseAddr,
			StreamWindow:  cfg.QUICWindow,
			Logger:        logger,
		})
		return &Network{Network: qn, ChunkSize: cfg.ChunkSize}, nil
	case config.TransportWebRTC:
		client, err := rendezvous.Dial(ctx, cfg.ServerURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to rendezvous server: %w", err)
		}
		wn := transferwebrtc.NewNetwork(client, transferwebrtc.Config{
			StunServers:    cfg.StunServers,
			TurnServers:    cfg.TurnServers,
			TurnUsername:   cfg.TurnUsername,
			TurnCredential: cfg.TurnCredential,
			OpenTimeout:    cfg.OpenTimeout,
			Logger:         logger,
		})
		chunkSize := cfg.ChunkSize
		if chunkSize > transferwebrtc.MaxChunkSize {
			logger.Debug("chunk size clamped for data channel", "requested", chunkSize, "max", transferwebrtc.MaxChunkSize)
			chunkSize = transferwebrtc.MaxChunkSize
		}
		return &Network{Network: wn, ChunkSize: chunkSize, Signaling: client}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Close releases the rendezvous connection, if any.
func (n *Network) Close() error {
	if n.Signaling != nil {
		return n.Signaling.Close()
	}
	return nil
}

// SignalingDone is closed when the rendezvous connection ends. It is nil, and
// so never ready, for networks without one.
func (n *Network) SignalingDone() <-chan struct{} {
	if n.Signaling == nil {
		return nil
	}
	return n.Signaling.Done()
}
