// Package display formats human-readable values for console output.
package display

import (
	"fmt"
	"time"
)

// FormatBytes returns a human-readable size (B, KiB, MiB, GiB, TiB, PiB).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), suffixes[exp])
}

// FormatRatio returns out as a percentage of in ("12% of original").
func FormatRatio(in, out int64) string {
	if in <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%d%% of original", out*100/in)
}

// FormatFPS returns the frame throughput of a job ("412.3 fps").
func FormatFPS(frames int, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "- fps"
	}
	return fmt.Sprintf("%.1f fps", float64(frames)/elapsed.Seconds())
}
