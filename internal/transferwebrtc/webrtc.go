// Package transferwebrtc opens transfer channels over WebRTC data channels. Offers
// and answers are relayed through the rendezvous server, addressed by the peer
// identifiers each side announced.
package transferwebrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/sheerbytes/bytebridge/internal/transfer"
	"github.com/sheerbytes/bytebridge/pkg/protocol"
)

const (
	dataChannelLabel   = "bytebridge"
	defaultOpenTimeout = 30 * time.Second
)

var (
	_ transfer.Network  = (*Network)(nil)
	_ transfer.Listener = (*Listener)(nil)
)

// Signaler relays channel-establishment messages between announced peers.
// *rendezvous.Client implements it.
type Signaler interface {
	Announce(peerID string) error
	Signal(to string, sig protocol.Signal) error
	OnSignal(handler func(from string, sig protocol.Signal))
}

// Config configures a WebRTC network.
type Config struct {
	StunServers    []string
	TurnServers    []string
	TurnUsername   string
	TurnCredential string
	// OpenTimeout bounds offer/answer exchange plus data channel opening. Zero means 30s.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// Network opens data channels to peers reachable through a Signaler. Each network
// announces one random peer identifier, used both as its share identifier and as
// the return address for answers.
type Network struct {
	sig      Signaler
	api      *webrtc.API
	pcConfig webrtc.Configuration
	timeout  time.Duration
	logger   *slog.Logger
	localID  string

	announceOnce sync.Once
	announceErr  error

	mu       sync.Mutex
	listener *Listener
	sessions map[string]*session // remote peer id -> negotiation in progress
}

// NewNetwork creates a network and subscribes to signals from sig.
func NewNetwork(sig Signaler, cfg Config) *Network {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	n := &Network{
		sig:      sig,
		api:      NewAPI(),
		pcConfig: DefaultPeerConnectionConfig(cfg.StunServers, cfg.TurnServers, cfg.TurnUsername, cfg.TurnCredential),
		timeout:  timeout,
		logger:   logger,
		localID:  uuid.NewString(),
		sessions: make(map[string]*session),
	}
	sig.OnSignal(n.handleSignal)
	return n
}

// LocalID returns the identifier this network announces.
func (n *Network) LocalID() string {
	return n.localID
}

func (n *Network) announce() error {
	n.announceOnce.Do(func() {
		n.announceErr = n.sig.Announce(n.localID)
	})
	return n.announceErr
}

// Listen announces the local identifier and accepts offers addressed to it. Only
// one listener may be open at a time.
func (n *Network) Listen(ctx context.Context) (transfer.Listener, error) {
	if err := n.announce(); err != nil {
		return nil, fmt.Errorf("announce peer id: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener != nil {
		return nil, errors.New("already listening")
	}
	l := &Listener{
		network: n,
		accept:  make(chan *Channel, 1),
		done:    make(chan struct{}),
	}
	n.listener = l
	return l, nil
}

// Dial offers a data channel to the peer that announced id and waits for it to open.
func (n *Network) Dial(ctx context.Context, id string) (transfer.Channel, error) {
	ch, err := n.dial(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transfer.ErrChannelEstablishmentFailed, err)
	}
	return ch, nil
}

func (n *Network) dial(ctx context.Context, id string) (*Channel, error) {
	if err := n.announce(); err != nil {
		return nil, fmt.Errorf("announce peer id: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	pc, err := n.api.NewPeerConnection(n.pcConfig)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	ordered := true
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	ch := newChannel(pc, dc, n.logger)

	sess := newSession(pc)
	n.mu.Lock()
	n.sessions[id] = sess
	n.mu.Unlock()
	defer n.dropSession(id, sess)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	local, err := n.setLocalDescription(ctx, pc, offer)
	if err != nil {
		ch.Close()
		return nil, err
	}
	if err := n.sig.Signal(id, protocol.Signal{Kind: protocol.SignalOffer, Data: local.SDP}); err != nil {
		ch.Close()
		return nil, fmt.Errorf("send offer: %w", err)
	}
	n.logger.Debug("offer sent", "to", id)

	select {
	case answer := <-sess.answer:
		if err := sess.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
			ch.Close()
			return nil, fmt.Errorf("apply answer: %w", err)
		}
	case <-ctx.Done():
		ch.Close()
		return nil, fmt.Errorf("no answer from %s: %w", id, ctx.Err())
	}

	if err := ch.waitOpen(ctx); err != nil {
		ch.Close()
		return nil, fmt.Errorf("data channel did not open: %w", err)
	}
	n.logger.Info("data channel open", "peer_id", id)
	return ch, nil
}

func (n *Network) dropSession(id string, sess *session) {
	n.mu.Lock()
	if n.sessions[id] == sess {
		delete(n.sessions, id)
	}
	n.mu.Unlock()
}

// setLocalDescription applies desc and waits for ICE gathering, so the returned
// description carries every local candidate.
func (n *Network) setLocalDescription(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, fmt.Errorf("ICE gathering: %w", ctx.Err())
	}
	return pc.LocalDescription(), nil
}

func (n *Network) handleSignal(from string, sig protocol.Signal) {
	switch sig.Kind {
	case protocol.SignalOffer:
		n.mu.Lock()
		l := n.listener
		n.mu.Unlock()
		if l == nil {
			n.logger.Warn("offer without listener", "from", from)
			return
		}
		go n.answer(l, from, sig.Data)

	case protocol.SignalAnswer:
		n.mu.Lock()
		sess := n.sessions[from]
		n.mu.Unlock()
		if sess == nil {
			n.logger.Debug("answer without pending offer", "from", from)
			return
		}
		select {
		case sess.answer <- sig.Data:
		default:
		}

	case protocol.SignalCandidate:
		n.mu.Lock()
		sess := n.sessions[from]
		n.mu.Unlock()
		if sess == nil {
			return
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(sig.Data), &candidate); err != nil {
			n.logger.Warn("invalid ICE candidate", "from", from, "error", err)
			return
		}
		if err := sess.addCandidate(candidate); err != nil {
			n.logger.Warn("failed to add ICE candidate", "from", from, "error", err)
		}

	default:
		n.logger.Warn("unknown signal kind", "from", from, "kind", sig.Kind)
	}
}

// answer accepts an offer from a receiver and hands the data channel to l once open.
func (n *Network) answer(l *Listener, from, sdp string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	pc, err := n.api.NewPeerConnection(n.pcConfig)
	if err != nil {
		n.logger.Error("failed to create peer connection", "error", err)
		return
	}

	incoming := make(chan *Channel, 1)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != dataChannelLabel {
			dc.Close()
			return
		}
		select {
		case incoming <- newChannel(pc, dc, n.logger):
		default:
			dc.Close()
		}
	})

	sess := newSession(pc)
	n.mu.Lock()
	n.sessions[from] = sess
	n.mu.Unlock()
	defer n.dropSession(from, sess)

	fail := func(msg string, err error) {
		n.logger.Warn(msg, "from", from, "error", err)
		pc.Close()
	}

	if err := sess.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		fail("failed to apply offer", err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		fail("failed to create answer", err)
		return
	}
	local, err := n.setLocalDescription(ctx, pc, answer)
	if err != nil {
		fail("failed to set answer", err)
		return
	}
	if err := n.sig.Signal(from, protocol.Signal{Kind: protocol.SignalAnswer, Data: local.SDP}); err != nil {
		fail("failed to send answer", err)
		return
	}

	var ch *Channel
	select {
	case ch = <-incoming:
	case <-l.done:
		pc.Close()
		return
	case <-ctx.Done():
		fail("no data channel from receiver", ctx.Err())
		return
	}
	if err := ch.waitOpen(ctx); err != nil {
		fail("data channel did not open", err)
		ch.Close()
		return
	}
	n.logger.Info("data channel open", "peer_id", from)
	l.deliver(ch)
}

// Listener hands out data channels opened by receivers.
type Listener struct {
	network   *Network
	accept    chan *Channel
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the announced peer identifier receivers address offers to.
func (l *Listener) ID() string {
	return l.network.localID
}

func (l *Listener) deliver(ch *Channel) {
	select {
	case <-l.done:
		ch.Close()
		return
	default:
	}
	select {
	case l.accept <- ch:
	default:
		// Already holding an unaccepted channel.
		ch.Close()
	}
}

func (l *Listener) Accept(ctx context.Context) (transfer.Channel, error) {
	select {
	case ch := <-l.accept:
		return ch, nil
	case <-l.done:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting offers. Channels already returned by Accept stay open.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.network.mu.Lock()
		if l.network.listener == l {
			l.network.listener = nil
		}
		l.network.mu.Unlock()
		select {
		case ch := <-l.accept:
			ch.Close()
		default:
		}
	})
	return nil
}

// session is one offer/answer negotiation. Remote candidates that arrive before
// the remote description are queued.
type session struct {
	pc     *webrtc.PeerConnection
	answer chan string

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newSession(pc *webrtc.PeerConnection) *session {
	return &session{pc: pc, answer: make(chan string, 1)}
}

func (s *session) setRemoteDescription(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.remoteSet = true
	for _, c := range s.pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	s.pending = nil
	return nil
}

func (s *session) addCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		return nil
	}
	return s.pc.AddICECandidate(c)
}
