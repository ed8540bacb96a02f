package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sheerbytes/bytebridge/internal/wsclient"
	"github.com/sheerbytes/bytebridge/pkg/protocol"
)

// ErrClientClosed is returned by requests issued on, or pending across, a closed client.
var ErrClientClosed = errors.New("rendezvous client closed")

// ServerError is an error envelope returned by the server in answer to a request.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("rendezvous: %s: %s", e.Code, e.Message)
}

// Client is a connection to the rendezvous server. Handlers registered with On run
// on the client's read goroutine in arrival order and must not block.
type Client struct {
	conn   *wsclient.Conn
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	handlers map[string][]func(protocol.Envelope)
	pending  map[string]chan protocol.Envelope
	err      error
}

// Dial connects to the rendezvous server at serverURL (http, https, ws or wss base URL).
func Dial(ctx context.Context, serverURL string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wsURL, err := wsclient.URL(serverURL)
	if err != nil {
		return nil, err
	}
	conn, err := wsclient.Dial(ctx, wsURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to rendezvous server: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		handlers: make(map[string][]func(protocol.Envelope)),
		pending:  make(map[string]chan protocol.Envelope),
	}
	go c.readLoop(readCtx)
	return c, nil
}

func (c *Client) readLoop(ctx context.Context) {
	err := c.conn.ReadLoop(ctx, c.dispatch)

	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	pending := c.pending
	c.pending = make(map[string]chan protocol.Envelope)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	close(c.done)
}

func (c *Client) dispatch(env protocol.Envelope) {
	c.mu.Lock()
	if ch, ok := c.pending[env.MsgID]; ok && (env.Type == protocol.TypePeerIDResult || env.Type == protocol.TypeError) {
		delete(c.pending, env.MsgID)
		c.mu.Unlock()
		ch <- env
		return
	}
	handlers := append([]func(protocol.Envelope){}, c.handlers[env.Type]...)
	c.mu.Unlock()

	if len(handlers) == 0 {
		if env.Type == protocol.TypeError {
			var e protocol.Error
			_ = env.DecodePayload(&e)
			c.logger.Warn("rendezvous error", "code", e.Code, "message", e.Message)
		} else {
			c.logger.Debug("unhandled rendezvous message", "type", env.Type)
		}
		return
	}
	for _, h := range handlers {
		h(env)
	}
}

// On registers handler for envelopes of msgType.
func (c *Client) On(msgType string, handler func(protocol.Envelope)) {
	c.mu.Lock()
	c.handlers[msgType] = append(c.handlers[msgType], handler)
	c.mu.Unlock()
}

// Emit sends an envelope of msgType addressed to the peer to ("" for the server).
func (c *Client) Emit(msgType, to string, payload any) error {
	env, err := protocol.NewEnvelope(msgType, protocol.NewMsgID(), payload)
	if err != nil {
		return err
	}
	env.To = to
	return c.send(env)
}

func (c *Client) send(env protocol.Envelope) error {
	if err := c.conn.Send(env); err != nil {
		if errors.Is(err, wsclient.ErrClosed) {
			return ErrClientClosed
		}
		return err
	}
	return nil
}

// Announce associates this connection with peerID on the server.
func (c *Client) Announce(peerID string) error {
	return c.Emit(protocol.TypeAnnounce, "", protocol.Announce{PeerID: peerID})
}

// QueryPeerID asks the server which identifier this connection announced. The
// boolean is false when nothing has been announced.
func (c *Client) QueryPeerID(ctx context.Context) (string, bool, error) {
	env, err := protocol.NewEnvelope(protocol.TypeQueryPeerID, protocol.NewMsgID(), protocol.QueryPeerID{})
	if err != nil {
		return "", false, err
	}

	reply := make(chan protocol.Envelope, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return "", false, ErrClientClosed
	default:
	}
	c.pending[env.MsgID] = reply
	c.mu.Unlock()

	if err := c.send(env); err != nil {
		c.forgetPending(env.MsgID)
		return "", false, err
	}

	select {
	case <-ctx.Done():
		c.forgetPending(env.MsgID)
		return "", false, ctx.Err()
	case resp, ok := <-reply:
		if !ok {
			return "", false, ErrClientClosed
		}
		if resp.Type == protocol.TypeError {
			var e protocol.Error
			if err := resp.DecodePayload(&e); err != nil {
				return "", false, err
			}
			return "", false, &ServerError{Code: e.Code, Message: e.Message}
		}
		var result protocol.PeerIDResult
		if err := resp.DecodePayload(&result); err != nil {
			return "", false, err
		}
		return result.PeerID, result.Found, nil
	}
}

func (c *Client) forgetPending(msgID string) {
	c.mu.Lock()
	delete(c.pending, msgID)
	c.mu.Unlock()
}

// Signal relays sig to the peer that announced to.
func (c *Client) Signal(to string, sig protocol.Signal) error {
	return c.Emit(protocol.TypeSignal, to, sig)
}

// OnSignal registers handler for signals relayed from other peers.
func (c *Client) OnSignal(handler func(from string, sig protocol.Signal)) {
	c.On(protocol.TypeSignal, func(env protocol.Envelope) {
		var sig protocol.Signal
		if err := env.DecodePayload(&sig); err != nil {
			c.logger.Warn("invalid signal payload", "from", env.From, "error", err)
			return
		}
		handler(env.From, sig)
	})
}

// OnError registers handler for server errors that answer no pending request.
func (c *Client) OnError(handler func(*ServerError)) {
	c.On(protocol.TypeError, func(env protocol.Envelope) {
		var e protocol.Error
		if err := env.DecodePayload(&e); err != nil {
			return
		}
		handler(&ServerError{Code: e.Code, Message: e.Message})
	})
}

// Done is closed when the connection to the server ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, once Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close disconnects from the server. The server forgets this connection's announcement.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.cancel()
	<-c.done
	return err
}
