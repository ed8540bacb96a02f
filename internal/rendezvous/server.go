// Package rendezvous implements the websocket service peers use to announce their
// identifiers and relay channel-establishment signals, plus the matching client.
package rendezvous

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sheerbytes/bytebridge/internal/peers"
	"github.com/sheerbytes/bytebridge/internal/registry"
	"github.com/sheerbytes/bytebridge/pkg/protocol"
)

const (
	defaultMaxMessageBytes = 64 * 1024
	serverPingInterval     = 30 * time.Second
	serverWriteTimeout     = 10 * time.Second
)

// ServerConfig holds the per-connection limits of the rendezvous server.
type ServerConfig struct {
	// MaxMessageBytes caps one inbound websocket message. Zero means 64 KiB.
	MaxMessageBytes int
	// IdleTimeout closes connections that send nothing, pongs included. Zero disables it.
	IdleTimeout time.Duration
	// MsgsPerSec and MsgsBurst rate-limit inbound messages per connection.
	// A non-positive rate disables limiting.
	MsgsPerSec float64
	MsgsBurst  int
	// AllowedOrigins restricts browser origins allowed to connect. Empty allows all.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server is the rendezvous websocket service. Announcements go to the registry;
// the hub owns the outbound side of every live connection.
type Server struct {
	cfg      ServerConfig
	registry *registry.Store
	hub      *peers.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a server backed by store.
func NewServer(store *registry.Store, cfg ServerConfig) *Server {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		registry: store,
		hub:      peers.NewHub(),
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Handler returns the HTTP routes of the server: /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.HandleWebSocket)
	return mux
}

// Connections returns the number of live websocket connections.
func (s *Server) Connections() int {
	return s.hub.Len()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":          true,
		"connections": s.hub.Len(),
		"peers":       s.registry.Len(),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients.
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and serves one rendezvous connection until
// it closes. The connection's announcement is forgotten on the way out.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", clientIP(r))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(s.cfg.MaxMessageBytes))

	var writeMu sync.Mutex
	if s.cfg.IdleTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			return nil
		})
		conn.SetPingHandler(func(appData string) error {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			writeMu.Lock()
			err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(serverWriteTimeout))
			writeMu.Unlock()
			return err
		})
	}

	connID := uuid.NewString()
	logger := s.logger.With("conn_id", connID)

	sendFunc := func(env protocol.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(serverWriteTimeout))
		return conn.WriteJSON(env)
	}
	remove := s.hub.Add(connID, sendFunc)

	defer func() {
		peerID, _ := s.registry.Lookup(connID)
		s.registry.Forget(connID)
		remove()
		logger.Info("peer disconnected", "peer_id", peerID)
	}()

	if s.cfg.IdleTimeout > 0 {
		stopPing := make(chan struct{})
		defer close(stopPing)
		go func() {
			ticker := time.NewTicker(serverPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stopPing:
					return
				case <-ticker.C:
					writeMu.Lock()
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(serverWriteTimeout))
					writeMu.Unlock()
				}
			}
		}()
	}

	logger.Info("peer connected", "remote", clientIP(r))

	var limiter *rate.Limiter
	if s.cfg.MsgsPerSec > 0 {
		burst := s.cfg.MsgsBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MsgsPerSec), burst)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				logger.Info("websocket idle timeout")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		if messageType != websocket.TextMessage {
			continue
		}
		if limiter != nil && !limiter.Allow() {
			logger.Warn("websocket message rate limit exceeded")
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logger.Warn("invalid JSON envelope", "error", err)
			continue
		}
		if err := env.ValidateBasic(); err != nil {
			logger.Warn("invalid envelope", "error", err)
			continue
		}

		s.route(connID, env, logger)
	}
}

// route handles one validated envelope from connID.
func (s *Server) route(connID string, env protocol.Envelope, logger *slog.Logger) {
	// From is always the sender's announced identifier, never what the client claims.
	env.From, _ = s.registry.Lookup(connID)

	switch env.Type {
	case protocol.TypeAnnounce:
		var announce protocol.Announce
		if err := env.DecodePayload(&announce); err != nil || announce.PeerID == "" {
			s.sendError(connID, env, protocol.ErrCodeInvalidPayload, "peer-id requires a non-empty peer_id")
			return
		}
		if !s.registry.Announce(connID, announce.PeerID) {
			s.sendError(connID, env, protocol.ErrCodePeerIDTaken, "peer id already announced by another connection: "+announce.PeerID)
			logger.Warn("duplicate announcement rejected", "peer_id", announce.PeerID)
			return
		}
		logger.Info("peer announced", "peer_id", announce.PeerID)

	case protocol.TypeQueryPeerID:
		peerID, found := s.registry.Lookup(connID)
		reply, err := protocol.NewReply(env, protocol.TypePeerIDResult, protocol.PeerIDResult{PeerID: peerID, Found: found})
		if err != nil {
			logger.Error("failed to create peer-id-result envelope", "error", err)
			return
		}
		reply.From = protocol.FromServer
		s.hub.SendTo(connID, reply)

	case protocol.TypeSignal:
		if env.From == "" {
			s.sendError(connID, env, protocol.ErrCodeNotAnnounced, "announce a peer id before signaling")
			return
		}
		if env.To == "" {
			s.sendError(connID, env, protocol.ErrCodeInvalidPayload, "signal requires a target peer")
			return
		}
		target, ok := s.registry.Resolve(env.To)
		if !ok {
			s.sendError(connID, env, protocol.ErrCodePeerNotFound, "target peer not found: "+env.To)
			logger.Warn("peer not found for signal", "from", env.From, "to", env.To)
			return
		}
		if !s.hub.SendTo(target, env) {
			s.sendError(connID, env, protocol.ErrCodePeerUnreachable, "signal dropped for peer: "+env.To)
			logger.Warn("signal dropped", "from", env.From, "to", env.To)
			return
		}
		logger.Debug("signal relayed", "from", env.From, "to", env.To)

	default:
		s.sendError(connID, env, protocol.ErrCodeUnknownType, "unknown message type: "+env.Type)
	}
}

// sendError answers req with an error envelope carrying req's msg_id.
func (s *Server) sendError(connID string, req protocol.Envelope, code, message string) {
	env, err := protocol.NewReply(req, protocol.TypeError, protocol.Error{Code: code, Message: message})
	if err != nil {
		s.logger.Error("failed to create error envelope", "error", err)
		return
	}
	env.From = protocol.FromServer
	s.hub.SendTo(connID, env)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
