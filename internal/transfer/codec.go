package transfer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds one encoded message on stream-based channels.
const MaxFrameSize = MaxChunkSize + 4*1024

// frame is the msgpack layout of every message: a type tag plus the encoded body.
type frame struct {
	Type    Kind               `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// Encode serializes msg into a self-describing msgpack frame.
func Encode(msg Message) ([]byte, error) {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return msgpack.Marshal(frame{Type: msg.Kind(), Payload: payload})
}

// Decode parses a frame produced by Encode. Malformed frames and unknown message
// types are reported as protocol violations.
func Decode(data []byte) (Message, error) {
	var f frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode frame: %v", ErrProtocolViolation, err)
	}

	switch f.Type {
	case KindMetadata:
		var m FileMetadata
		if err := msgpack.Unmarshal(f.Payload, &m); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrProtocolViolation, f.Type, err)
		}
		return m, nil
	case KindChunk:
		var c FileChunk
		if err := msgpack.Unmarshal(f.Payload, &c); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrProtocolViolation, f.Type, err)
		}
		return c, nil
	case KindComplete:
		return TransferComplete{}, nil
	default:
		return nil, fmt.Errorf("%w: %w %q", ErrProtocolViolation, ErrUnknownMessage, f.Type)
	}
}

// WriteFrame writes msg to a byte stream as a big-endian uint32 length followed by
// the encoded frame.
func WriteFrame(w io.Writer, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame written by WriteFrame.
func ReadFrame(r io.Reader) (Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %w (%d bytes)", ErrProtocolViolation, ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return Decode(data)
}
