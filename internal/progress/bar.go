package progress

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar draws a byte progress bar on a terminal and keeps a Meter for the
// final summary. When the output is not a terminal only the Meter runs.
type Bar struct {
	meter *Meter
	bar   *progressbar.ProgressBar
}

// NewBar starts a bar for total bytes labelled with description. tty selects
// whether anything is drawn to w.
func NewBar(w io.Writer, description string, total int64, tty bool) *Bar {
	b := &Bar{meter: NewMeter()}
	b.meter.Start(total)
	if tty {
		b.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return b
}

// Update records done of total bytes. It matches the transfer progress
// callback signature.
func (b *Bar) Update(done, total uint64) {
	if int64(total) != b.meter.Snapshot().Total {
		b.meter.SetTotal(int64(total))
		if b.bar != nil {
			b.bar.ChangeMax64(int64(total))
		}
	}
	b.meter.Set(int64(done))
	if b.bar != nil {
		_ = b.bar.Set64(int64(done))
	}
}

// Finish clears the bar and returns the final stats.
func (b *Bar) Finish() Stats {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
	return b.meter.Snapshot()
}

// Abort stops drawing without completing the bar.
func (b *Bar) Abort() {
	if b.bar != nil {
		_ = b.bar.Exit()
	}
}

// IsTTY reports whether f is a character device.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
