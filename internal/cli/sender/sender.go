// Package sender implements "bridge share".
package sender

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheerbytes/bytebridge/internal/app"
	"github.com/sheerbytes/bytebridge/internal/config"
	"github.com/sheerbytes/bytebridge/internal/logging"
	"github.com/sheerbytes/bytebridge/internal/progress"
	"github.com/sheerbytes/bytebridge/internal/termio"
	"github.com/sheerbytes/bytebridge/internal/transfer"
	"github.com/sheerbytes/bytebridge/pkg/sharelink"
)

// announceTimeout bounds the check that the server registered our identifier.
const announceTimeout = 10 * time.Second

// Options carries the output streams of a share.
type Options struct {
	// Out receives the share link and the final summary.
	Out io.Writer
	// Progress receives the progress bar when TTY is set.
	Progress io.Writer
	TTY      bool
	Logger   *slog.Logger
	// OnLink, if set, is called with the share link once it is printed.
	OnLink func(link string)
}

func Run(args []string) {
	if hasHelpFlag(args) {
		printSenderUsage()
		return
	}
	cfg, rest, err := config.ParseClientConfig("share", args)
	if err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		printSenderUsage()
		exit(2)
	}
	if len(rest) != 1 {
		printSenderUsage()
		exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = Share(ctx, cfg, rest[0], Options{
		Out:      termio.Stdout(),
		Progress: termio.Stderr(),
		TTY:      progress.IsTTY(termio.StderrFile()),
		Logger:   logging.NewWithWriter(termio.Stderr(), "bridge", cfg.LogLevel),
	})
	stop()
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "share failed: %v\n", err)
		exit(1)
	}
	termio.Flush()
}

// Share offers the file at path to one receiver: it prints the share link to
// opts.Out, waits for a receiver, streams the file and returns.
func Share(ctx context.Context, cfg config.ClientConfig, path string, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	file, err := transfer.OpenFile(path)
	if err != nil {
		return err
	}
	// The sender closes the file when it finishes; this covers early returns.
	defer file.Close()

	network, err := app.OpenNetwork(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer network.Close()

	var bar *progress.Bar
	s := transfer.NewSender(file, transfer.SenderConfig{
		ChunkSize: network.ChunkSize,
		Logger:    logger,
		OnProgress: func(sent, total uint64) {
			if bar == nil {
				bar = progress.NewBar(opts.Progress, "sending "+file.Name(), int64(total), opts.TTY)
			}
			bar.Update(sent, total)
		},
	})

	id, err := s.BeginShare(ctx, network)
	if err != nil {
		return err
	}
	if err := confirmAnnounced(ctx, network, id); err != nil {
		return err
	}

	link, err := sharelink.Build(cfg.Origin, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(opts.Out, "share link: %s\n", link)
	fmt.Fprintf(opts.Out, "waiting for a receiver for %s (%s)\n", file.Name(), progress.FormatBytes(int64(file.Size())))
	if opts.OnLink != nil {
		opts.OnLink(link)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-network.SignalingDone():
			// Without signaling no receiver can reach an unclaimed share.
			if s.State() == transfer.SenderAwaitingChannel {
				logger.Warn("rendezvous connection lost before a receiver arrived")
				cancel()
			}
		case <-serveCtx.Done():
		}
	}()

	if err := s.Serve(serveCtx); err != nil {
		if bar != nil {
			bar.Abort()
		}
		logger.Warn("share aborted", "file", file.Name(), "bytes_sent", s.Cursor(), "error", err)
		if ctx.Err() == nil && serveCtx.Err() != nil {
			return fmt.Errorf("rendezvous connection lost: %w", err)
		}
		return err
	}

	stats := progress.Stats{}
	if bar != nil {
		stats = bar.Finish()
	}
	fmt.Fprintln(opts.Out, progress.Summary("sent", file.Name(), stats))
	return nil
}

// confirmAnnounced asks the rendezvous server which identifier it holds for
// this connection, so the link is only printed once receivers can resolve it.
func confirmAnnounced(ctx context.Context, network *app.Network, id string) error {
	if network.Signaling == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, announceTimeout)
	defer cancel()
	got, found, err := network.Signaling.QueryPeerID(ctx)
	if err != nil {
		return fmt.Errorf("confirm announcement: %w", err)
	}
	if !found || got != id {
		return fmt.Errorf("server holds identifier %q, expected %q", got, id)
	}
	return nil
}

func printSenderUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: bridge share [flags] <file>")
	fmt.Fprintln(termio.Stderr(), "flags:")
	fmt.Fprintln(termio.Stderr(), "  --server-url URL     rendezvous server (default http://localhost:3000, env BYTEBRIDGE_SERVER_URL)")
	fmt.Fprintln(termio.Stderr(), "  --origin URL         base URL of the share link (default: server URL)")
	fmt.Fprintln(termio.Stderr(), "  --transport NAME     webrtc or quic (default webrtc)")
	fmt.Fprintln(termio.Stderr(), "  --chunk-size N       chunk size in bytes (default 65536)")
	fmt.Fprintln(termio.Stderr(), "  --listen ADDR        UDP listen address for quic (default 0.0.0.0:0)")
	fmt.Fprintln(termio.Stderr(), "  --advertise ADDR     address put in quic share links")
	fmt.Fprintln(termio.Stderr(), "  --quic-window N      quic stream receive window in bytes")
	fmt.Fprintln(termio.Stderr(), "  --stun-server URLS   STUN servers (repeatable, comma-separated)")
	fmt.Fprintln(termio.Stderr(), "  --turn-server URLS   TURN servers (repeatable, comma-separated, env BYTEBRIDGE_TURN_SERVERS)")
	fmt.Fprintln(termio.Stderr(), "  --turn-username U    TURN username (env BYTEBRIDGE_TURN_USERNAME)")
	fmt.Fprintln(termio.Stderr(), "  --turn-credential P  TURN password (env BYTEBRIDGE_TURN_CREDENTIAL)")
	fmt.Fprintln(termio.Stderr(), "  --open-timeout D     direct channel establishment timeout (default 30s)")
	fmt.Fprintln(termio.Stderr(), "  --log-level LEVEL    debug, info, warn, error (default warn)")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func exit(code int) {
	termio.Flush()
	os.Exit(code)
}
