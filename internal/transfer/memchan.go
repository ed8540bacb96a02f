package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// memQueueSize bounds the frames buffered in each direction of an in-memory pipe.
const memQueueSize = 64

// memPipe is the shared state of one in-memory channel pair.
type memPipe struct {
	closeOnce sync.Once
	closed    chan struct{}
}

func (p *memPipe) close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// MemChannel is one end of an in-memory channel pair. Messages pass through the
// msgpack codec so both ends see exactly what a network channel would deliver.
type MemChannel struct {
	pipe *memPipe
	in   <-chan []byte
	out  chan<- []byte
}

var _ Channel = (*MemChannel)(nil)

// NewPipe returns two connected in-memory channels.
func NewPipe() (*MemChannel, *MemChannel) {
	p := &memPipe{closed: make(chan struct{})}
	ab := make(chan []byte, memQueueSize)
	ba := make(chan []byte, memQueueSize)
	return &MemChannel{pipe: p, in: ba, out: ab}, &MemChannel{pipe: p, in: ab, out: ba}
}

// Send encodes msg and queues it for the other end.
func (c *MemChannel) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.pipe.closed:
		return io.ErrClosedPipe
	default:
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.out <- data:
		return nil
	case <-c.pipe.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next queued message. Messages queued before Close are still
// delivered; after that Recv returns io.EOF.
func (c *MemChannel) Recv(ctx context.Context) (Message, error) {
	select {
	case data := <-c.in:
		return Decode(data)
	default:
	}

	select {
	case data := <-c.in:
		return Decode(data)
	case <-c.pipe.closed:
		select {
		case data := <-c.in:
			return Decode(data)
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends.
func (c *MemChannel) Close() error {
	c.pipe.close()
	return nil
}

// MemNetwork is an in-process Network. Identifiers are random UUIDs.
type MemNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memListener
}

var _ Network = (*MemNetwork)(nil)

// NewMemNetwork creates an empty in-process network.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{listeners: make(map[string]*memListener)}
}

// Listen allocates a new identifier.
func (n *MemNetwork) Listen(ctx context.Context) (Listener, error) {
	l := &memListener{
		network: n,
		id:      uuid.NewString(),
		accept:  make(chan *MemChannel, 1),
		done:    make(chan struct{}),
	}
	n.mu.Lock()
	n.listeners[l.id] = l
	n.mu.Unlock()
	return l, nil
}

// Dial opens a channel to the listener registered under id.
func (n *MemNetwork) Dial(ctx context.Context, id string) (Channel, error) {
	n.mu.Lock()
	l, ok := n.listeners[id]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no peer %q", ErrChannelEstablishmentFailed, id)
	}

	local, remote := NewPipe()
	select {
	case l.accept <- remote:
		return local, nil
	case <-l.done:
		return nil, fmt.Errorf("%w: peer %q closed", ErrChannelEstablishmentFailed, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memListener struct {
	network   *MemNetwork
	id        string
	accept    chan *MemChannel
	done      chan struct{}
	closeOnce sync.Once
}

func (l *memListener) ID() string { return l.id }

func (l *memListener) Accept(ctx context.Context) (Channel, error) {
	select {
	case ch := <-l.accept:
		return ch, nil
	case <-l.done:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.network.mu.Lock()
		delete(l.network.listeners, l.id)
		l.network.mu.Unlock()
	})
	return nil
}
