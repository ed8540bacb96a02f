// Package transferquic carries a transfer channel over one QUIC stream. The
// sender's channel-addressable identifier is its UDP address, so no signaling
// server is involved.
package transferquic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/sheerbytes/bytebridge/internal/quictransport"
	"github.com/sheerbytes/bytebridge/internal/transfer"
)

var (
	_ transfer.Network  = (*Network)(nil)
	_ transfer.Listener = (*Listener)(nil)
	_ transfer.Channel  = (*Channel)(nil)
)

// Config configures a QUIC network.
type Config struct {
	// ListenAddr is the UDP address senders listen on. Default "0.0.0.0:0".
	ListenAddr string
	// AdvertiseAddr, if set, replaces the listener address as the share identifier,
	// for example the host's public address.
	AdvertiseAddr string
	// StreamWindow sizes the QUIC receive window in bytes. Zero keeps the default.
	StreamWindow int
	Logger       *slog.Logger
}

// Network opens transfer channels over QUIC.
type Network struct {
	cfg    Config
	logger *slog.Logger
}

// NewNetwork creates a QUIC network.
func NewNetwork(cfg Config) *Network {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Network{cfg: cfg, logger: logger}
}

// Listen binds a UDP socket. The identifier is the address receivers dial.
func (n *Network) Listen(ctx context.Context) (transfer.Listener, error) {
	ln, err := quictransport.Listen(n.cfg.ListenAddr, quictransport.WindowsFor(n.cfg.StreamWindow), n.logger)
	if err != nil {
		return nil, err
	}
	id := n.cfg.AdvertiseAddr
	if id == "" {
		id = advertisedAddr(ln.Addr())
	}
	return &Listener{ln: ln, id: id, logger: n.logger}, nil
}

// Dial connects to the sender listening at id.
func (n *Network) Dial(ctx context.Context, id string) (transfer.Channel, error) {
	if _, _, err := net.SplitHostPort(id); err != nil {
		return nil, fmt.Errorf("%w: %q is not a host:port address", transfer.ErrChannelEstablishmentFailed, id)
	}
	conn, err := quictransport.Dial(ctx, id, quictransport.WindowsFor(n.cfg.StreamWindow), n.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transfer.ErrChannelEstablishmentFailed, err)
	}
	return &Channel{conn: conn, logger: n.logger}, nil
}

// advertisedAddr replaces an unspecified listen host with loopback so the
// identifier is always dialable from this machine.
func advertisedAddr(addr net.Addr) string {
	udp, ok := addr.(*net.UDPAddr)
	if !ok || !udp.IP.IsUnspecified() {
		return addr.String()
	}
	return net.JoinHostPort("127.0.0.1", fmt.Sprint(udp.Port))
}

// Listener accepts QUIC connections from receivers.
type Listener struct {
	ln     *quic.Listener
	id     string
	logger *slog.Logger
}

func (l *Listener) ID() string { return l.id }

// Accept waits for a receiver and opens the transfer stream towards it.
func (l *Listener) Accept(ctx context.Context) (transfer.Channel, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept QUIC connection: %w", err)
	}
	l.logger.Info("QUIC connection accepted", "remote_addr", conn.RemoteAddr())

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	return &Channel{conn: conn, stream: stream, logger: l.logger}, nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

// Channel is a transfer channel over one bidirectional QUIC stream. The sending
// side opens the stream; the dialing side picks it up on first use, which blocks
// until the peer has written to it.
type Channel struct {
	conn   *quic.Conn
	logger *slog.Logger

	mu     sync.Mutex
	stream *quic.Stream

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *Channel) getStream(ctx context.Context) (*quic.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return c.stream, nil
	}
	stream, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, closedErr(err)
	}
	c.logger.Debug("QUIC stream accepted", "stream_id", stream.StreamID())
	c.stream = stream
	return stream, nil
}

// Send writes msg as one length-prefixed frame.
func (c *Channel) Send(ctx context.Context, msg transfer.Message) error {
	stream, err := c.getStream(ctx)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		stream.SetWriteDeadline(deadline)
	}
	return closedErr(transfer.WriteFrame(stream, msg))
}

// Recv reads the next frame. A clean close by the peer is io.EOF.
func (c *Channel) Recv(ctx context.Context) (transfer.Message, error) {
	stream, err := c.getStream(ctx)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { stream.CancelRead(0) })
	defer stop()

	msg, err := transfer.ReadFrame(stream)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, closedErr(err)
	}
	return msg, nil
}

// Close closes the connection. Frames not yet delivered are discarded, so the
// sending side waits for the receiver to hang up first.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.CloseWithError(0, "")
	})
	return err
}

// closedErr maps a graceful close by the peer to io.EOF.
func closedErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode == 0 {
		return io.EOF
	}
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) && streamErr.ErrorCode == 0 {
		return io.EOF
	}
	return err
}
