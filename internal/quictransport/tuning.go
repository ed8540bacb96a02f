package quictransport

import "github.com/quic-go/quic-go"

const (
	minConnWindow   = 1 * 1024 * 1024
	maxConnWindow   = 1024 * 1024 * 1024
	minStreamWindow = 1 * 1024 * 1024
	maxStreamWindow = 256 * 1024 * 1024
)

// Windows sizes the flow-control receive windows. Zero fields keep the defaults.
type Windows struct {
	Conn   int
	Stream int
}

// WindowsFor derives connection and stream windows from one stream window.
// A share uses one stream, so the connection only needs headroom for control frames.
func WindowsFor(streamWindow int) Windows {
	if streamWindow <= 0 {
		return Windows{}
	}
	return Windows{Conn: 2 * streamWindow, Stream: streamWindow}
}

// TunedConfig returns a copy of base with the windows in w applied, clamped to
// sane bounds. base is not modified.
func TunedConfig(base *quic.Config, w Windows) *quic.Config {
	cfg := &quic.Config{}
	if base != nil {
		copyCfg := *base
		cfg = &copyCfg
	}
	if w.Conn > 0 {
		conn := clamp(w.Conn, minConnWindow, maxConnWindow)
		cfg.MaxConnectionReceiveWindow = uint64(conn)
		if cfg.InitialConnectionReceiveWindow > uint64(conn) {
			cfg.InitialConnectionReceiveWindow = uint64(conn)
		}
	}
	if w.Stream > 0 {
		stream := clamp(w.Stream, minStreamWindow, maxStreamWindow)
		cfg.MaxStreamReceiveWindow = uint64(stream)
		if cfg.InitialStreamReceiveWindow > uint64(stream) {
			cfg.InitialStreamReceiveWindow = uint64(stream)
		}
	}
	return cfg
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
