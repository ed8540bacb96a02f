package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// ReceiverState is the lifecycle position of a Receiver.
type ReceiverState int

const (
	AwaitingMetadata ReceiverState = iota
	Receiving
	Complete
	Failed
)

func (s ReceiverState) String() string {
	switch s {
	case AwaitingMetadata:
		return "awaiting_metadata"
	case Receiving:
		return "receiving"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("receiver_state(%d)", int(s))
	}
}

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// OnProgress, if set, is called after each accepted chunk.
	OnProgress func(received, total uint64)
	Logger     *slog.Logger
}

// Receiver reassembles one file from transfer messages. Chunks are placed by
// offset, so arrival order does not matter. A Receiver is owned by one channel.
type Receiver struct {
	onProgress func(received, total uint64)
	logger     *slog.Logger

	mu            sync.Mutex
	state         ReceiverState
	err           error
	metadata      FileMetadata
	hasMetadata   bool
	chunks        map[uint64][]byte
	bytesReceived uint64
}

// NewReceiver returns a receiver awaiting metadata.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		onProgress: cfg.OnProgress,
		logger:     logger,
		chunks:     make(map[uint64][]byte),
	}
}

// OnMessage applies msg to the session. It returns the error that moved the
// receiver to Failed, or nil. Messages after Complete or Failed are ignored.
func (r *Receiver) OnMessage(msg Message) error {
	r.mu.Lock()

	var err error
	switch r.state {
	case AwaitingMetadata:
		err = r.onAwaitingMetadata(msg)
	case Receiving:
		err = r.onReceiving(msg)
	default:
		r.mu.Unlock()
		return nil
	}

	if err != nil {
		r.failLocked(err)
		r.mu.Unlock()
		return err
	}

	received, total, state, name := r.bytesReceived, r.metadata.Size, r.state, r.metadata.Name
	r.mu.Unlock()

	if msg.Kind() == KindChunk && r.onProgress != nil {
		r.onProgress(received, total)
	}
	if state == Complete {
		r.logger.Info("transfer received", "name", name, "size", total)
	}
	return nil
}

func (r *Receiver) onAwaitingMetadata(msg Message) error {
	meta, ok := msg.(FileMetadata)
	if !ok {
		return fmt.Errorf("%w: %s before metadata", ErrProtocolViolation, msg.Kind())
	}
	r.metadata = meta
	r.hasMetadata = true
	r.bytesReceived = 0
	r.state = Receiving
	r.logger.Debug("metadata received", "name", meta.Name, "size", meta.Size, "mime_type", meta.MimeType)
	return nil
}

func (r *Receiver) onReceiving(msg Message) error {
	switch m := msg.(type) {
	case FileChunk:
		return r.placeChunk(m)
	case TransferComplete:
		if r.bytesReceived != r.metadata.Size {
			return fmt.Errorf("%w: received %d of %d bytes", ErrTruncatedTransfer, r.bytesReceived, r.metadata.Size)
		}
		if err := r.checkCoverage(); err != nil {
			return err
		}
		r.state = Complete
		return nil
	default:
		return fmt.Errorf("%w: %s while receiving", ErrProtocolViolation, msg.Kind())
	}
}

func (r *Receiver) placeChunk(c FileChunk) error {
	n := uint64(len(c.Data))
	size := r.metadata.Size
	if n == 0 || c.Offset >= size || n > size-c.Offset {
		return fmt.Errorf("%w: %w: [%d, %d) outside file of %d bytes", ErrProtocolViolation, ErrInvalidChunk, c.Offset, c.Offset+n, size)
	}
	if _, dup := r.chunks[c.Offset]; dup {
		return fmt.Errorf("%w: %w: duplicate offset %d", ErrProtocolViolation, ErrInvalidChunk, c.Offset)
	}
	if r.bytesReceived+n > size {
		return fmt.Errorf("%w: %w: [%d, %d) overlaps data already received, %d of %d bytes", ErrProtocolViolation, ErrInvalidChunk, c.Offset, c.Offset+n, r.bytesReceived+n, size)
	}
	r.chunks[c.Offset] = c.Data
	r.bytesReceived += n
	return nil
}

// checkCoverage verifies the placed chunks tile [0, size) without gaps or overlaps.
func (r *Receiver) checkCoverage() error {
	var next uint64
	for _, off := range r.sortedOffsets() {
		if off != next {
			return fmt.Errorf("%w: %w: expected offset %d, got %d", ErrProtocolViolation, ErrInvalidChunk, next, off)
		}
		next += uint64(len(r.chunks[off]))
	}
	if next != r.metadata.Size {
		return fmt.Errorf("%w: chunks cover %d of %d bytes", ErrTruncatedTransfer, next, r.metadata.Size)
	}
	return nil
}

func (r *Receiver) sortedOffsets() []uint64 {
	offsets := make([]uint64, 0, len(r.chunks))
	for off := range r.chunks {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

// OnClose records that the channel ended. Before Complete this fails the session
// with ErrChannelClosedMidTransfer, unless cause is already a protocol violation.
func (r *Receiver) OnClose(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Complete || r.state == Failed {
		return
	}
	if cause != nil && errors.Is(cause, ErrProtocolViolation) {
		r.failLocked(cause)
		return
	}
	if cause == nil || cause == io.EOF {
		r.failLocked(ErrChannelClosedMidTransfer)
		return
	}
	r.failLocked(fmt.Errorf("%w: %v", ErrChannelClosedMidTransfer, cause))
}

func (r *Receiver) failLocked(err error) {
	r.state = Failed
	r.err = err
	// Partial data is discarded, never materialized.
	r.chunks = make(map[uint64][]byte)
	r.logger.Warn("transfer failed", "error", err, "bytes_received", r.bytesReceived)
}

// Receive feeds messages from ch into the receiver until the session reaches
// Complete or Failed. It returns nil on Complete and the failure otherwise. The
// caller owns ch and closes it.
func (r *Receiver) Receive(ctx context.Context, ch Channel) error {
	for {
		msg, err := ch.Recv(ctx)
		if err != nil {
			r.OnClose(err)
			return r.Err()
		}
		if err := r.OnMessage(msg); err != nil {
			return err
		}
		switch r.State() {
		case Complete:
			return nil
		case Failed:
			return r.Err()
		}
	}
}

// Materialize returns the reassembled file. It fails with ErrNotComplete unless
// the session is Complete.
func (r *Receiver) Materialize() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Complete {
		return nil, r.notCompleteLocked()
	}

	out := make([]byte, 0, r.metadata.Size)
	for _, off := range r.sortedOffsets() {
		out = append(out, r.chunks[off]...)
	}
	return out, nil
}

// WriteTo writes the reassembled file to w in offset order. Like Materialize it
// requires Complete.
func (r *Receiver) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Complete {
		return 0, r.notCompleteLocked()
	}

	var written int64
	for _, off := range r.sortedOffsets() {
		n, err := w.Write(r.chunks[off])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (r *Receiver) notCompleteLocked() error {
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrNotComplete, r.err)
	}
	return fmt.Errorf("%w: state %s", ErrNotComplete, r.state)
}

// State returns the current lifecycle state.
func (r *Receiver) State() ReceiverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure that moved the receiver to Failed, if any.
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Metadata returns the announced file metadata. The boolean is false until the
// metadata message has arrived.
func (r *Receiver) Metadata() (FileMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadata, r.hasMetadata
}

// BytesReceived returns the number of chunk bytes accepted so far.
func (r *Receiver) BytesReceived() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesReceived
}
