package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sheerbytes/bytebridge/internal/bufpool"
)

// SenderState is the lifecycle position of a Sender.
type SenderState int

const (
	SenderIdle SenderState = iota
	SenderAwaitingChannel
	SenderStreaming
	SenderDone
	SenderFailed
)

func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "idle"
	case SenderAwaitingChannel:
		return "awaiting_channel"
	case SenderStreaming:
		return "streaming"
	case SenderDone:
		return "done"
	case SenderFailed:
		return "failed"
	default:
		return fmt.Sprintf("sender_state(%d)", int(s))
	}
}

// defaultLinger is how long Serve waits for the receiver to hang up after the
// completion message before closing the channel itself.
const defaultLinger = 30 * time.Second

// SenderConfig configures a Sender.
type SenderConfig struct {
	// ChunkSize is the nominal chunk size in bytes. Zero means DefaultChunkSize.
	ChunkSize int
	// Linger bounds the wait for the receiver to close after completion.
	// Zero means 30s; negative closes immediately.
	Linger time.Duration
	// OnProgress, if set, is called after each chunk is handed to the channel.
	OnProgress func(sent, total uint64)
	Logger     *slog.Logger
}

// Sender streams one file to the first receiver that opens a channel to it.
type Sender struct {
	file       FileSource
	chunkSize  int
	linger     time.Duration
	onProgress func(sent, total uint64)
	logger     *slog.Logger
	pool       *bufpool.Pool

	mu       sync.Mutex
	state    SenderState
	err      error
	listener Listener
	cursor   uint64
	// listening is set while BeginShare waits on Network.Listen.
	listening bool
}

// NewSender prepares a share of file.
func NewSender(file FileSource, cfg SenderConfig) *Sender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	linger := cfg.Linger
	if linger == 0 {
		linger = defaultLinger
	}
	chunkSize := NormalizeChunkSize(cfg.ChunkSize)
	return &Sender{
		file:       file,
		chunkSize:  chunkSize,
		linger:     linger,
		onProgress: cfg.OnProgress,
		logger:     logger,
		pool:       bufpool.New(chunkSize),
	}
}

// BeginShare allocates a channel-addressable identifier on network and returns it.
// It does not wait for a receiver.
func (s *Sender) BeginShare(ctx context.Context, network Network) (string, error) {
	s.mu.Lock()
	if s.state != SenderIdle || s.listening {
		s.mu.Unlock()
		return "", ErrSenderBusy
	}
	s.listening = true
	s.mu.Unlock()

	l, err := network.Listen(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrChannelEstablishmentFailed, err)
		s.fail(err)
		return "", err
	}

	s.mu.Lock()
	s.listener = l
	s.listening = false
	s.state = SenderAwaitingChannel
	s.mu.Unlock()

	s.logger.Info("share ready", "peer_id", l.ID(), "name", s.file.Name(), "size", s.file.Size())
	return l.ID(), nil
}

// Serve waits for one receiver on the identifier allocated by BeginShare, streams
// the file to it and closes the channel. The listener is closed once a receiver
// arrives, so each share serves exactly one channel.
func (s *Sender) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("serve called before BeginShare")
	}

	ch, err := l.Accept(ctx)
	_ = l.Close()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrChannelEstablishmentFailed, err)
		s.fail(err)
		return err
	}
	defer ch.Close()

	if err := s.OnIncomingChannel(ctx, ch); err != nil {
		return err
	}
	s.waitForHangup(ctx, ch)
	return nil
}

// OnIncomingChannel streams the file over ch: one FileMetadata, the chunks in
// offset order, then TransferComplete. It does not close ch.
func (s *Sender) OnIncomingChannel(ctx context.Context, ch Channel) error {
	s.mu.Lock()
	if s.state != SenderIdle && s.state != SenderAwaitingChannel {
		s.mu.Unlock()
		return ErrSenderBusy
	}
	s.state = SenderStreaming
	s.cursor = 0
	s.mu.Unlock()

	defer s.releaseFile()

	size := s.file.Size()
	meta := FileMetadata{
		Name:     s.file.Name(),
		Size:     size,
		MimeType: s.file.MimeType(),
	}
	if err := ch.Send(ctx, meta); err != nil {
		return s.abort(err)
	}
	s.logger.Debug("metadata sent", "name", meta.Name, "size", meta.Size, "mime_type", meta.MimeType)

	buf := s.pool.Get()
	defer s.pool.Put(buf)

	var cursor uint64
	for cursor < size {
		if err := ctx.Err(); err != nil {
			return s.abort(err)
		}

		n := uint64(s.chunkSize)
		if remaining := size - cursor; remaining < n {
			n = remaining
		}
		read, err := s.file.ReadAt(buf[:n], int64(cursor))
		if uint64(read) < n {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			readErr := fmt.Errorf("read file at offset %d: %w", cursor, err)
			s.fail(readErr)
			return readErr
		}

		if err := ch.Send(ctx, FileChunk{Data: buf[:n], Offset: cursor}); err != nil {
			return s.abort(err)
		}
		cursor += n

		s.mu.Lock()
		s.cursor = cursor
		s.mu.Unlock()
		if s.onProgress != nil {
			s.onProgress(cursor, size)
		}
	}

	if err := ch.Send(ctx, TransferComplete{}); err != nil {
		return s.abort(err)
	}

	s.mu.Lock()
	s.state = SenderDone
	s.mu.Unlock()
	s.logger.Info("transfer sent", "name", meta.Name, "size", size)
	return nil
}

// State returns the current lifecycle state.
func (s *Sender) State() SenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the sender to SenderFailed, if any.
func (s *Sender) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ID returns the identifier allocated by BeginShare, or "" before it.
func (s *Sender) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.ID()
}

// Cursor returns the next unsent offset.
func (s *Sender) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Close abandons the share: the listener and the file are released.
func (s *Sender) Close() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}
	s.releaseFile()
	return nil
}

// abort records a channel failure during streaming.
func (s *Sender) abort(cause error) error {
	err := fmt.Errorf("%w: %v", ErrChannelClosedMidTransfer, cause)
	s.fail(err)
	return err
}

func (s *Sender) fail(err error) {
	s.mu.Lock()
	s.state = SenderFailed
	s.err = err
	cursor := s.cursor
	s.mu.Unlock()
	s.logger.Error("transfer failed", "error", err, "offset", cursor)
}

func (s *Sender) releaseFile() {
	if c, ok := s.file.(io.Closer); ok {
		_ = c.Close()
	}
}

// waitForHangup drains ch until the receiver closes it, so buffered messages are
// not cut off by closing early.
func (s *Sender) waitForHangup(ctx context.Context, ch Channel) {
	if s.linger < 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.linger)
	defer cancel()
	for {
		if _, err := ch.Recv(ctx); err != nil {
			return
		}
	}
}
