package config

import (
	"flag"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestParseServerConfig_Defaults(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.Addr != ":3000" {
		t.Errorf("expected Addr to be :3000, got %s", cfg.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel to be info, got %s", cfg.LogLevel)
	}
	if cfg.MaxMessageBytes != 64*1024 {
		t.Errorf("expected MaxMessageBytes to be 65536, got %d", cfg.MaxMessageBytes)
	}
	if cfg.WSIdleTimeout != 10*time.Minute {
		t.Errorf("expected WSIdleTimeout to be 10m, got %s", cfg.WSIdleTimeout)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("expected no AllowedOrigins, got %v", cfg.AllowedOrigins)
	}
}

func TestParseServerConfig_Flags(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{
		"-addr", ":9090",
		"-log-level", "debug",
		"-ws-idle-timeout", "30s",
		"-ws-msgs-per-sec", "5",
		"-allowed-origin", "http://localhost:5173,https://bridge.example.com",
	})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("expected Addr to be :9090, got %s", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel to be debug, got %s", cfg.LogLevel)
	}
	if cfg.WSIdleTimeout != 30*time.Second {
		t.Errorf("expected WSIdleTimeout to be 30s, got %s", cfg.WSIdleTimeout)
	}
	if cfg.WSMsgsPerSec != 5 {
		t.Errorf("expected WSMsgsPerSec to be 5, got %d", cfg.WSMsgsPerSec)
	}
	want := []string{"http://localhost:5173", "https://bridge.example.com"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("expected AllowedOrigins %v, got %v", want, cfg.AllowedOrigins)
	}
}

func TestParseServerConfig_EnvFallback(t *testing.T) {
	os.Clearenv()
	t.Setenv("BYTEBRIDGE_ADDR", ":7070")
	t.Setenv("BYTEBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("BYTEBRIDGE_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.Addr != ":7070" {
		t.Errorf("expected Addr to be :7070, got %s", cfg.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected LogLevel to be warn, got %s", cfg.LogLevel)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("expected two AllowedOrigins, got %v", cfg.AllowedOrigins)
	}
}

func TestParseServerConfig_FlagsOverrideEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("BYTEBRIDGE_ADDR", ":7070")
	t.Setenv("BYTEBRIDGE_ALLOWED_ORIGINS", "http://env.example")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{"-addr", ":9090", "-allowed-origin", "http://flag.example"})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("expected Addr to be :9090 (from flag), got %s", cfg.Addr)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"http://flag.example"}) {
		t.Errorf("expected AllowedOrigins from flag, got %v", cfg.AllowedOrigins)
	}
}

func TestParseServerConfig_Invalid(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(discard{})
	if _, err := parseServerConfigWithFlagSet(fs, []string{"-max-message-bytes", "0"}); err == nil {
		t.Error("expected error for zero max-message-bytes")
	}
}

func TestParseClientConfig_Defaults(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.ServerURL != "http://localhost:3000" {
		t.Errorf("expected ServerURL to be http://localhost:3000, got %s", cfg.ServerURL)
	}
	if cfg.Origin != cfg.ServerURL {
		t.Errorf("expected Origin to default to ServerURL, got %s", cfg.Origin)
	}
	if cfg.ChunkSize != 64*1024 {
		t.Errorf("expected ChunkSize to be 65536, got %d", cfg.ChunkSize)
	}
	if cfg.Transport != TransportWebRTC {
		t.Errorf("expected Transport to be webrtc, got %s", cfg.Transport)
	}
	if len(cfg.StunServers) != 1 {
		t.Errorf("expected one default STUN server, got %v", cfg.StunServers)
	}
	if cfg.OutDir != "." {
		t.Errorf("expected OutDir to be ., got %s", cfg.OutDir)
	}
}

func TestParseClientConfig_Flags(t *testing.T) {
	os.Clearenv()

	cfg, rest, err := ParseClientConfig("share", []string{
		"-server-url", "http://example.com:9090",
		"-origin", "https://share.example.com",
		"-chunk-size", "16384",
		"-transport", "quic",
		"-listen", "0.0.0.0:4433",
		"-quic-window", "8388608",
		"-stun-server", "stun:a.example:3478",
		"-stun-server", "stun:b.example:3478",
		"report.pdf",
	})
	if err != nil {
		t.Fatalf("ParseClientConfig() error = %v", err)
	}

	if cfg.ServerURL != "http://example.com:9090" {
		t.Errorf("expected ServerURL to be http://example.com:9090, got %s", cfg.ServerURL)
	}
	if cfg.Origin != "https://share.example.com" {
		t.Errorf("expected Origin to be https://share.example.com, got %s", cfg.Origin)
	}
	if cfg.ChunkSize != 16384 {
		t.Errorf("expected ChunkSize to be 16384, got %d", cfg.ChunkSize)
	}
	if cfg.Transport != TransportQUIC {
		t.Errorf("expected Transport to be quic, got %s", cfg.Transport)
	}
	if cfg.ListenAddr != "0.0.0.0:4433" {
		t.Errorf("expected ListenAddr to be 0.0.0.0:4433, got %s", cfg.ListenAddr)
	}
	if cfg.QUICWindow != 8388608 {
		t.Errorf("expected QUICWindow to be 8388608, got %d", cfg.QUICWindow)
	}
	if len(cfg.StunServers) != 2 {
		t.Errorf("expected two STUN servers, got %v", cfg.StunServers)
	}
	if !reflect.DeepEqual(rest, []string{"report.pdf"}) {
		t.Errorf("expected positional args [report.pdf], got %v", rest)
	}
}

func TestParseClientConfig_EnvFallback(t *testing.T) {
	os.Clearenv()
	t.Setenv("BYTEBRIDGE_SERVER_URL", "http://env.example.com:7070")
	t.Setenv("BYTEBRIDGE_ORIGIN", "http://links.example.com")
	t.Setenv("BYTEBRIDGE_CHUNK_SIZE", "1024")
	t.Setenv("BYTEBRIDGE_TRANSPORT", "quic")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.ServerURL != "http://env.example.com:7070" {
		t.Errorf("expected ServerURL from env, got %s", cfg.ServerURL)
	}
	if cfg.Origin != "http://links.example.com" {
		t.Errorf("expected Origin from env, got %s", cfg.Origin)
	}
	if cfg.ChunkSize != 1024 {
		t.Errorf("expected ChunkSize to be 1024, got %d", cfg.ChunkSize)
	}
	if cfg.Transport != TransportQUIC {
		t.Errorf("expected Transport to be quic, got %s", cfg.Transport)
	}
}

func TestParseClientConfig_TURN(t *testing.T) {
	os.Clearenv()
	t.Setenv("BYTEBRIDGE_TURN_SERVERS", "turn:env.example:3478, turns:env.example:5349")
	t.Setenv("BYTEBRIDGE_TURN_USERNAME", "env-user")
	t.Setenv("BYTEBRIDGE_TURN_CREDENTIAL", "env-pass")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}
	want := []string{"turn:env.example:3478", "turns:env.example:5349"}
	if !reflect.DeepEqual(cfg.TurnServers, want) {
		t.Errorf("expected TurnServers %v from env, got %v", want, cfg.TurnServers)
	}
	if cfg.TurnUsername != "env-user" || cfg.TurnCredential != "env-pass" {
		t.Errorf("expected env TURN credentials, got %q/%q", cfg.TurnUsername, cfg.TurnCredential)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err = parseClientConfigWithFlagSet(fs, []string{
		"-turn-server", "turn:flag.example:3478",
		"-turn-username", "flag-user",
	})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}
	if !reflect.DeepEqual(cfg.TurnServers, []string{"turn:flag.example:3478"}) {
		t.Errorf("expected TurnServers from flag, got %v", cfg.TurnServers)
	}
	if cfg.TurnUsername != "flag-user" || cfg.TurnCredential != "env-pass" {
		t.Errorf("expected flag username with env credential, got %q/%q", cfg.TurnUsername, cfg.TurnCredential)
	}
}

func TestParseClientConfig_FlagsOverrideEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("BYTEBRIDGE_SERVER_URL", "http://env.example.com:7070")
	t.Setenv("BYTEBRIDGE_TRANSPORT", "quic")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, []string{"-server-url", "http://flag.example.com", "-transport", "webrtc"})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.ServerURL != "http://flag.example.com" {
		t.Errorf("expected ServerURL from flag, got %s", cfg.ServerURL)
	}
	if cfg.Transport != TransportWebRTC {
		t.Errorf("expected Transport from flag, got %s", cfg.Transport)
	}
}

func TestParseClientConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "unknown transport", args: []string{"-transport", "carrier-pigeon"}},
		{name: "zero chunk size", args: []string{"-chunk-size", "0"}},
		{name: "negative quic window", args: []string{"-quic-window", "-1"}},
		{name: "bad chunk size env", env: map[string]string{"BYTEBRIDGE_CHUNK_SIZE": "big"}},
		{name: "turn without credentials", args: []string{"-turn-server", "turn:turn.example.com:3478"}},
		{name: "turn env without credential", env: map[string]string{"BYTEBRIDGE_TURN_SERVERS": "turn:a.example:3478", "BYTEBRIDGE_TURN_USERNAME": "alice"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.SetOutput(discard{})
			if _, err := parseClientConfigWithFlagSet(fs, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
