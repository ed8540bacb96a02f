package transfer

import "context"

// Channel is an open direct channel between two peers carrying transfer messages.
//
// Send must not retain msg, or any slice it references, after returning; senders
// reuse chunk buffers. Recv returns io.EOF once the channel has been closed and
// every message sent before the close has been delivered.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// Listener is the sender's side of a share: an identifier a receiver can dial,
// and the channels opened to it.
type Listener interface {
	// ID returns the channel-addressable identifier receivers pass to Dial.
	ID() string
	// Accept waits for a receiver to open a channel.
	Accept(ctx context.Context) (Channel, error)
	Close() error
}

// Network establishes direct channels. Listen allocates a fresh identifier without
// waiting for anyone to dial it.
type Network interface {
	Listen(ctx context.Context) (Listener, error)
	Dial(ctx context.Context, id string) (Channel, error)
}
