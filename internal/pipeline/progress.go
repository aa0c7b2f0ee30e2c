package pipeline

import (
	"fmt"
	"time"
)

// ProgressTracker estimates completion of a scan over a file of known size.
type ProgressTracker struct {
	totalBytes  int64
	startTime   time.Time
	description string
}

// NewProgressTracker starts tracking now.
func NewProgressTracker(totalBytes int64, description string) *ProgressTracker {
	return &ProgressTracker{
		totalBytes:  totalBytes,
		startTime:   time.Now(),
		description: description,
	}
}

// Progress is one estimate.
type Progress struct {
	Current     int64
	Percentage  float64
	Elapsed     time.Duration
	ETA         time.Duration
	Throughput  float64 // elements per second
	Description string
}

// Calculate estimates progress after count elements and bytesProcessed
// bytes.
func (p *ProgressTracker) Calculate(count, bytesProcessed int64) Progress {
	return p.at(time.Since(p.startTime), count, bytesProcessed)
}

func (p *ProgressTracker) at(elapsed time.Duration, count, bytesProcessed int64) Progress {
	out := Progress{
		Current:     count,
		Elapsed:     elapsed.Round(time.Second),
		Description: p.description,
	}
	secs := elapsed.Seconds()
	if secs > 0 {
		out.Throughput = float64(count) / secs
	}
	if p.totalBytes > 0 && bytesProcessed > 0 {
		out.Percentage = float64(bytesProcessed) / float64(p.totalBytes) * 100
		if out.Percentage < 100 && secs > 0 {
			rate := float64(bytesProcessed) / secs
			out.ETA = time.Duration(float64(p.totalBytes-bytesProcessed) / rate * float64(time.Second)).Round(time.Second)
		}
	}
	return out
}

// FormatETA renders d as hours, minutes and seconds.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}
	d = d.Round(time.Second)
	h, m, s := d/time.Hour, (d%time.Hour)/time.Minute, (d%time.Minute)/time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput renders a per-second rate with K and M suffixes.
func FormatThroughput(perSec float64) string {
	switch {
	case perSec >= 1_000_000:
		return fmt.Sprintf("%.1fM/s", perSec/1_000_000)
	case perSec >= 1_000:
		return fmt.Sprintf("%.1fK/s", perSec/1_000)
	}
	return fmt.Sprintf("%.0f/s", perSec)
}

// FormatBytes renders a byte count in binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	v, suffix := float64(n)/unit, "KB"
	for _, s := range []string{"MB", "GB", "TB"} {
		if v < unit {
			break
		}
		v, suffix = v/unit, s
	}
	return fmt.Sprintf("%.1f %s", v, suffix)
}
