package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

// recordChannel captures sent messages, copying chunk data because senders
// reuse their buffers.
type recordChannel struct {
	mu      sync.Mutex
	sent    []Message
	failAt  int // Send fails once len(sent) reaches failAt; 0 disables
	closed  bool
	recvErr error
}

func (c *recordChannel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.sent) >= c.failAt {
		return io.ErrClosedPipe
	}
	if chunk, ok := msg.(FileChunk); ok {
		chunk.Data = bytes.Clone(chunk.Data)
		msg = chunk
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordChannel) Recv(ctx context.Context) (Message, error) {
	if c.recvErr != nil {
		return nil, c.recvErr
	}
	return nil, io.EOF
}

func (c *recordChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordChannel) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// chunksOf splits data the way a sender with chunkSize would.
func chunksOf(data []byte, chunkSize int) []FileChunk {
	var chunks []FileChunk
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, FileChunk{Data: data[off:end], Offset: uint64(off)})
	}
	return chunks
}
