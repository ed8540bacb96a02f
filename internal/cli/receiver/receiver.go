// Package receiver implements "bridge fetch".
package receiver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sheerbytes/bytebridge/internal/app"
	"github.com/sheerbytes/bytebridge/internal/config"
	"github.com/sheerbytes/bytebridge/internal/logging"
	"github.com/sheerbytes/bytebridge/internal/progress"
	"github.com/sheerbytes/bytebridge/internal/termio"
	"github.com/sheerbytes/bytebridge/internal/transfer"
	"github.com/sheerbytes/bytebridge/pkg/sharelink"
)

const fallbackName = "download"

// Options carries the output streams of a fetch.
type Options struct {
	// Out receives the final summary.
	Out io.Writer
	// Progress receives the progress bar when TTY is set.
	Progress io.Writer
	TTY      bool
	Logger   *slog.Logger
}

func Run(args []string) {
	if hasHelpFlag(args) {
		printReceiverUsage()
		return
	}
	cfg, rest, err := config.ParseClientConfig("fetch", args)
	if err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		printReceiverUsage()
		exit(2)
	}
	if len(rest) != 1 {
		printReceiverUsage()
		exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	_, err = Fetch(ctx, cfg, rest[0], Options{
		Out:      termio.Stdout(),
		Progress: termio.Stderr(),
		TTY:      progress.IsTTY(termio.StderrFile()),
		Logger:   logging.NewWithWriter(termio.Stderr(), "bridge", cfg.LogLevel),
	})
	stop()
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "fetch failed: %v\n", err)
		exit(1)
	}
	termio.Flush()
}

// Fetch downloads the file offered at link into cfg.OutDir and returns the
// path it was written to. Nothing is written unless the transfer completes.
func Fetch(ctx context.Context, cfg config.ClientConfig, link string, opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	id, err := sharelink.Parse(link)
	if err != nil {
		return "", err
	}

	network, err := app.OpenNetwork(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer network.Close()

	dialCtx := ctx
	if cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.OpenTimeout)
		defer cancel()
	}
	ch, err := network.Dial(dialCtx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", transfer.ErrChannelEstablishmentFailed, err)
		}
		return "", err
	}
	defer ch.Close()
	logger.Info("channel open", "peer_id", id)

	var bar *progress.Bar
	var r *transfer.Receiver
	r = transfer.NewReceiver(transfer.ReceiverConfig{
		Logger: logger,
		OnProgress: func(received, total uint64) {
			if bar == nil {
				name := "file"
				if meta, ok := r.Metadata(); ok {
					name = meta.Name
				}
				bar = progress.NewBar(opts.Progress, "receiving "+name, int64(total), opts.TTY)
			}
			bar.Update(received, total)
		},
	})
	if err := r.Receive(ctx, ch); err != nil {
		if bar != nil {
			bar.Abort()
		}
		return "", err
	}
	_ = ch.Close()

	meta, _ := r.Metadata()
	path, err := writeFile(r, cfg.OutDir, meta.Name)
	if err != nil {
		return "", err
	}

	stats := progress.Stats{}
	if bar != nil {
		stats = bar.Finish()
	}
	fmt.Fprintf(opts.Out, "%s -> %s\n", progress.Summary("received", meta.Name, stats), path)
	return path, nil
}

// writeFile materializes r into dir through a temporary file so a failed write
// never leaves a partial file under the final name.
func writeFile(r *transfer.Receiver, dir, name string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bridge-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriterSize(tmp, 1<<20)
	if _, err := r.WriteTo(w); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	path, err := availablePath(dir, safeName(name))
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return path, nil
}

// safeName reduces a sender-supplied name to a single path element.
func safeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	switch name {
	case "", ".", "..", "/":
		return fallbackName
	}
	return name
}

// availablePath returns dir/name, or dir/"stem (n).ext" when that exists.
func availablePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; i < 1000; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

func printReceiverUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: bridge fetch [flags] <share-link>")
	fmt.Fprintln(termio.Stderr(), "flags:")
	fmt.Fprintln(termio.Stderr(), "  --out DIR            directory to write the file to (default .)")
	fmt.Fprintln(termio.Stderr(), "  --server-url URL     rendezvous server (default http://localhost:3000, env BYTEBRIDGE_SERVER_URL)")
	fmt.Fprintln(termio.Stderr(), "  --transport NAME     webrtc or quic, must match the sender (default webrtc)")
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
