package transfer

import "errors"

var (
	// ErrChannelEstablishmentFailed indicates no direct channel could be opened to the peer.
	ErrChannelEstablishmentFailed = errors.New("channel establishment failed")
	// ErrProtocolViolation indicates a message arrived that the session state does not allow.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrTruncatedTransfer indicates completion was signalled before all bytes arrived.
	ErrTruncatedTransfer = errors.New("truncated transfer")
	// ErrChannelClosedMidTransfer indicates the channel ended before the transfer completed.
	ErrChannelClosedMidTransfer = errors.New("channel closed mid-transfer")
	// ErrNotComplete indicates the file was requested before the transfer completed.
	ErrNotComplete = errors.New("transfer not complete")
	// ErrInvalidChunk indicates a chunk outside the announced file or overlapping another chunk.
	ErrInvalidChunk = errors.New("invalid chunk")
	// ErrUnknownMessage indicates a frame with an unrecognized message type.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrFrameTooLarge indicates a frame larger than MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrSenderBusy indicates the sender already started or finished a transfer.
	ErrSenderBusy = errors.New("sender already streaming")
)
