package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transports selectable with --transport.
const (
	TransportWebRTC = "webrtc"
	TransportQUIC   = "quic"
)

const defaultChunkSize = 64 * 1024

// ServerConfig holds configuration for the rendezvous server binary.
type ServerConfig struct {
	Addr            string
	LogLevel        string
	MaxMessageBytes int
	WSIdleTimeout   time.Duration
	WSMsgsPerSec    int
	WSMsgsBurst     int
	AllowedOrigins  []string
}

// ClientConfig holds configuration for the share and fetch commands.
type ClientConfig struct {
	ServerURL      string
	Origin         string // base URL of share links; defaults to ServerURL
	LogLevel       string
	ChunkSize      int
	Transport      string
	ListenAddr     string // quic sender bind address
	AdvertiseAddr  string // quic sender address put in the link, if not the bind address
	QUICWindow     int    // quic stream receive window in bytes; 0 keeps the default
	StunServers    []string
	TurnServers    []string
	TurnUsername   string
	TurnCredential string
	OutDir         string
	OpenTimeout    time.Duration
}

// ParseServerConfig parses server configuration from flags and environment variables.
// Flags take precedence over environment variables.
func ParseServerConfig() ServerConfig {
	cfg, err := parseServerConfigWithFlagSet(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Addr:            ":3000",
		LogLevel:        "info",
		MaxMessageBytes: 64 * 1024,
		WSIdleTimeout:   10 * time.Minute,
		WSMsgsPerSec:    50,
		WSMsgsBurst:     100,
	}

	// Read from environment first
	if addr := os.Getenv("BYTEBRIDGE_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if logLevel := os.Getenv("BYTEBRIDGE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if origins := os.Getenv("BYTEBRIDGE_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	// Flags override environment
	var origins stringSlice
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&cfg.MaxMessageBytes, "max-message-bytes", cfg.MaxMessageBytes, "max websocket message size")
	fs.DurationVar(&cfg.WSIdleTimeout, "ws-idle-timeout", cfg.WSIdleTimeout, "websocket idle timeout (0 disables)")
	fs.IntVar(&cfg.WSMsgsPerSec, "ws-msgs-per-sec", cfg.WSMsgsPerSec, "max websocket messages per second per connection (0 disables)")
	fs.IntVar(&cfg.WSMsgsBurst, "ws-msgs-burst", cfg.WSMsgsBurst, "burst websocket messages per connection")
	fs.Var(&origins, "allowed-origin", "allowed browser origin (repeatable, comma-separated; default all)")
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}
	if len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}

	if cfg.MaxMessageBytes <= 0 {
		return ServerConfig{}, errors.New("max-message-bytes must be positive")
	}
	return cfg, nil
}

// ParseClientConfig parses the flags of a client command. It returns the
// configuration and the remaining positional arguments.
func ParseClientConfig(command string, args []string) (ClientConfig, []string, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, args)
	if err != nil {
		return ClientConfig{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	cfg := ClientConfig{
		ServerURL:   "http://localhost:3000",
		LogLevel:    "warn",
		ChunkSize:   defaultChunkSize,
		Transport:   TransportWebRTC,
		ListenAddr:  "0.0.0.0:0",
		StunServers: []string{"stun:stun.l.google.com:19302"},
		OutDir:      ".",
		OpenTimeout: 30 * time.Second,
	}

	// Read from environment first
	if serverURL := os.Getenv("BYTEBRIDGE_SERVER_URL"); serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if origin := os.Getenv("BYTEBRIDGE_ORIGIN"); origin != "" {
		cfg.Origin = origin
	}
	if logLevel := os.Getenv("BYTEBRIDGE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if transport := os.Getenv("BYTEBRIDGE_TRANSPORT"); transport != "" {
		cfg.Transport = transport
	}
	if raw := os.Getenv("BYTEBRIDGE_TURN_SERVERS"); raw != "" {
		cfg.TurnServers = splitList(raw)
	}
	cfg.TurnUsername = os.Getenv("BYTEBRIDGE_TURN_USERNAME")
	cfg.TurnCredential = os.Getenv("BYTEBRIDGE_TURN_CREDENTIAL")
	if raw := os.Getenv("BYTEBRIDGE_CHUNK_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return ClientConfig{}, fmt.Errorf("invalid BYTEBRIDGE_CHUNK_SIZE %q: %w", raw, err)
		}
		cfg.ChunkSize = size
	}

	// Flags override environment
	var stun, turn stringSlice
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "rendezvous server URL")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "base URL of share links (default: server URL)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk size in bytes")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "direct channel transport (webrtc, quic)")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "UDP listen address for quic shares")
	fs.StringVar(&cfg.AdvertiseAddr, "advertise", cfg.AdvertiseAddr, "address put in quic share links")
	fs.IntVar(&cfg.QUICWindow, "quic-window", cfg.QUICWindow, "quic stream receive window in bytes (0 keeps the default)")
	fs.Var(&stun, "stun-server", "STUN server URL (repeatable, comma-separated)")
	fs.Var(&turn, "turn-server", "TURN server URL (repeatable, comma-separated)")
	fs.StringVar(&cfg.TurnUsername, "turn-username", cfg.TurnUsername, "TURN long-term username")
	fs.StringVar(&cfg.TurnCredential, "turn-credential", cfg.TurnCredential, "TURN long-term password")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "directory fetched files are written to")
	fs.DurationVar(&cfg.OpenTimeout, "open-timeout", cfg.OpenTimeout, "direct channel establishment timeout")
	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, err
	}

	if len(stun) > 0 {
		cfg.StunServers = stun
	}
	if len(turn) > 0 {
		cfg.TurnServers = turn
	}
	if cfg.Origin == "" {
		cfg.Origin = cfg.ServerURL
	}
	if cfg.Transport != TransportWebRTC && cfg.Transport != TransportQUIC {
		return ClientConfig{}, fmt.Errorf("unknown transport %q (want %s or %s)", cfg.Transport, TransportWebRTC, TransportQUIC)
	}
	if len(cfg.TurnServers) > 0 && (cfg.TurnUsername == "" || cfg.TurnCredential == "") {
		return ClientConfig{}, errors.New("turn servers require --turn-username and --turn-credential")
	}
	if cfg.QUICWindow < 0 {
		return ClientConfig{}, fmt.Errorf("quic window must not be negative, got %d", cfg.QUICWindow)
	}
	if cfg.ChunkSize <= 0 {
		return ClientConfig{}, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// stringSlice implements flag.Value for repeatable, comma-separated string flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, splitList(value)...)
	return nil
}

var _ flag.Value = (*stringSlice)(nil)
