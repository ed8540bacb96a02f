package transferwebrtc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/sheerbytes/bytebridge/internal/transfer"
)

const (
	// MaxMessageSize is the largest data channel message sent. Every transfer
	// message travels as one data channel message.
	MaxMessageSize = 64 * 1024
	// MaxChunkSize leaves room for the frame header inside MaxMessageSize.
	MaxChunkSize = MaxMessageSize - 1024

	inboxSize         = 128
	bufferedHighWater = 1024 * 1024
	bufferedLowWater  = 256 * 1024
)

var _ transfer.Channel = (*Channel)(nil)

// Channel is a transfer channel over one reliable, ordered data channel.
type Channel struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	logger *slog.Logger

	in       chan []byte
	lowWater chan struct{}

	opened   chan struct{}
	openOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
}

func newChannel(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, logger *slog.Logger) *Channel {
	c := &Channel{
		pc:       pc,
		dc:       dc,
		logger:   logger,
		in:       make(chan []byte, inboxSize),
		lowWater: make(chan struct{}, 1),
		opened:   make(chan struct{}),
		closed:   make(chan struct{}),
	}

	dc.SetBufferedAmountLowThreshold(bufferedLowWater)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.lowWater <- struct{}{}:
		default:
		}
	})
	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.opened) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		// Blocking here applies backpressure to the SCTP association.
		select {
		case c.in <- bytes.Clone(msg.Data):
		case <-c.closed:
		}
	})
	dc.OnError(func(err error) {
		logger.Warn("data channel error", "label", dc.Label(), "error", err)
		c.markClosed()
	})
	dc.OnClose(c.markClosed)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			c.markClosed()
		}
	})
	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		c.openOnce.Do(func() { close(c.opened) })
	}
	return c
}

func (c *Channel) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// waitOpen blocks until the data channel is open.
func (c *Channel) waitOpen(ctx context.Context) error {
	select {
	case <-c.opened:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send encodes msg into one data channel message. It waits while too much data
// is queued in the data channel.
func (c *Channel) Send(ctx context.Context, msg transfer.Message) error {
	data, err := transfer.Encode(msg)
	if err != nil {
		return err
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes exceeds data channel limit %d", transfer.ErrFrameTooLarge, len(data), MaxMessageSize)
	}

	for c.dc.BufferedAmount() > bufferedHighWater {
		select {
		case <-c.lowWater:
		case <-c.closed:
			return io.ErrClosedPipe
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	if err := c.dc.Send(data); err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}
	return nil
}

// Recv returns the next message. Messages that arrived before the channel
// closed are still delivered; after that Recv returns io.EOF.
func (c *Channel) Recv(ctx context.Context) (transfer.Message, error) {
	select {
	case data := <-c.in:
		return transfer.Decode(data)
	default:
	}

	select {
	case data := <-c.in:
		return transfer.Decode(data)
	case <-c.closed:
		select {
		case data := <-c.in:
			return transfer.Decode(data)
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the data channel and its peer connection.
func (c *Channel) Close() error {
	c.markClosed()
	_ = c.dc.Close()
	return c.pc.Close()
}
