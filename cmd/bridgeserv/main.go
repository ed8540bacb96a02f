package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheerbytes/bytebridge/internal/config"
	"github.com/sheerbytes/bytebridge/internal/logging"
	"github.com/sheerbytes/bytebridge/internal/registry"
	"github.com/sheerbytes/bytebridge/internal/rendezvous"
	"github.com/sheerbytes/bytebridge/internal/termio"
)

const (
	serverVersion   = "v0.1.0"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if hasHelpFlag(os.Args[1:]) {
		printServerUsage()
		termio.Flush()
		return
	}
	if hasVersionFlag(os.Args[1:]) {
		fmt.Fprintln(termio.Stdout(), serverVersion)
		termio.Flush()
		return
	}
	cfg := config.ParseServerConfig()
	logger := logging.New("bridgeserv", cfg.LogLevel)

	store := registry.New()
	srv := rendezvous.NewServer(store, rendezvous.ServerConfig{
		MaxMessageBytes: cfg.MaxMessageBytes,
		IdleTimeout:     cfg.WSIdleTimeout,
		MsgsPerSec:      float64(cfg.WSMsgsPerSec),
		MsgsBurst:       cfg.WSMsgsBurst,
		AllowedOrigins:  cfg.AllowedOrigins,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "version", serverVersion)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down", "connections", srv.Connections(), "peers", store.Len())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}

func printServerUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: bridgeserv [flags]")
	fmt.Fprintln(termio.Stderr(), "  --addr ADDR                listen address (default :3000, env BYTEBRIDGE_ADDR)")
	fmt.Fprintln(termio.Stderr(), "  --log-level LEVEL          debug, info, warn, error (default info, env BYTEBRIDGE_LOG_LEVEL)")
	fmt.Fprintln(termio.Stderr(), "  --max-message-bytes N      max websocket message size (default 65536)")
	fmt.Fprintln(termio.Stderr(), "  --ws-idle-timeout D        websocket idle timeout (default 10m, 0 disables)")
	fmt.Fprintln(termio.Stderr(), "  --ws-msgs-per-sec N        max messages per second per connection (default 50)")
	fmt.Fprintln(termio.Stderr(), "  --ws-msgs-burst N          burst messages per connection (default 100)")
	fmt.Fprintln(termio.Stderr(), "  --allowed-origin URLS      allowed browser origins (repeatable, default all)")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
