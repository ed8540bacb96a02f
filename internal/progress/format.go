package progress

import (
	"fmt"
	"time"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	switch {
	case n >= gib:
		return fmt.Sprintf("%.2f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	case n < 0:
		return "0 B"
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// FormatRate renders a bytes-per-second rate.
func FormatRate(bps float64) string {
	if bps >= gib {
		return fmt.Sprintf("%.2f GiB/s", bps/gib)
	}
	if bps >= mib {
		return fmt.Sprintf("%.1f MiB/s", bps/mib)
	}
	if bps >= kib {
		return fmt.Sprintf("%.0f KiB/s", bps/kib)
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

// FormatDuration renders d as hh:mm:ss.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Summary is the one-line report printed when a transfer finishes.
func Summary(verb, name string, s Stats) string {
	line := fmt.Sprintf("%s %s (%s) in %s", verb, name, FormatBytes(s.BytesDone), FormatDuration(s.Elapsed))
	if secs := s.Elapsed.Seconds(); secs > 0 && s.BytesDone > 0 {
		line += ", " + FormatRate(float64(s.BytesDone)/secs)
	}
	return line
}
