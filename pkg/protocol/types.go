package protocol

// Rendezvous event names. Every event travels in an Envelope.
const (
	TypeAnnounce     = "peer-id"
	TypeQueryPeerID  = "get-peer-id"
	TypePeerIDResult = "peer-id-result"
	TypeSignal       = "signal"
	TypeError        = "error"
)

// Error codes carried in Error payloads.
const (
	ErrCodePeerNotFound    = "peer_not_found"
	ErrCodePeerUnreachable = "peer_unreachable"
	ErrCodeNotAnnounced    = "not_announced"
	ErrCodePeerIDTaken     = "peer_id_taken"
	ErrCodeInvalidPayload  = "invalid_payload"
	ErrCodeUnknownType     = "unknown_type"
)

// FromServer is the From value of envelopes generated by the server itself.
const FromServer = "server"
