package util

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count for log and status messages.
func FormatBytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// FormatDuration renders a duration as h/m/s without sub-second noise.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatSeconds renders a float second count as mm:ss for messages.
func FormatSeconds(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	total := int(secs)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
