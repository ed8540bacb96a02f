package protocol

// Announce associates the sending connection with a peer identifier.
type Announce struct {
	PeerID string `json:"peer_id"`
}

// QueryPeerID asks the server which peer identifier the sending connection announced.
// It carries no fields; the reply is correlated by msg_id.
type QueryPeerID struct{}

// PeerIDResult answers a QueryPeerID. Found is false when nothing was announced.
type PeerIDResult struct {
	PeerID string `json:"peer_id,omitempty"`
	Found  bool   `json:"found"`
}

// Signal kinds relayed between peers while a direct channel is negotiated.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// Signal is an opaque channel-establishment message relayed to the peer named in
// the envelope's To field.
type Signal struct {
	Kind string `json:"kind"`
	Data string `json:"data"`
}

// Error reports a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
