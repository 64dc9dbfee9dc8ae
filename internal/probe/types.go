package probe

import (
	"math"
	"strconv"
	"strings"
)

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	FormatName string
	Duration   float64
	Size       int64
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index         int
	Codec         string
	PixFmt        string
	Width         int
	Height        int
	AvgFrameRate  string
	RFrameRate    string
	NbFrames      int64
	Duration      float64
	IsAttachedPic bool
}

// ProbeResult is the fully parsed output of a single ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
type ProbeResult struct {
	Format       FormatInfo
	PrimaryVideo *VideoStream
}

// Dimensions returns the primary video width and height, or 0, 0.
func (p *ProbeResult) Dimensions() (int, int) {
	if p.PrimaryVideo == nil {
		return 0, 0
	}
	return p.PrimaryVideo.Width, p.PrimaryVideo.Height
}

// FrameRate returns the primary video frame rate in frames/sec. The average
// rate is preferred; the nominal rate is used when ffprobe reports 0/0.
// Returns 0 when neither is usable.
func (p *ProbeResult) FrameRate() float64 {
	if p.PrimaryVideo == nil {
		return 0
	}
	if fps := parseRate(p.PrimaryVideo.AvgFrameRate); fps > 0 {
		return fps
	}
	return parseRate(p.PrimaryVideo.RFrameRate)
}

// FrameCount returns nb_frames when the container records it, otherwise an
// estimate from duration and frame rate. Used only to size outputs.
func (p *ProbeResult) FrameCount() int64 {
	if p.PrimaryVideo == nil {
		return 0
	}
	if p.PrimaryVideo.NbFrames > 0 {
		return p.PrimaryVideo.NbFrames
	}
	d := p.PrimaryVideo.Duration
	if d <= 0 {
		d = p.Format.Duration
	}
	return int64(math.Round(d * p.FrameRate()))
}

// parseRate parses ffprobe's "num/den" rational (or a plain number).
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
