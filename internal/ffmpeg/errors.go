package ffmpeg

import (
	"regexp"
	"strconv"
)

// Pre-compiled regexes for classifying ffmpeg stderr output.
var (
	reInvalidInput = regexp.MustCompile(
		`(?i)Invalid data found when processing input|` +
			`moov atom not found|` +
			`No such file or directory|` +
			`could not find codec parameters|` +
			`Error opening input`)

	reNoVideo = regexp.MustCompile(
		`(?i)matches no streams|does not contain any stream|` +
			`Output file .* does not contain any stream`)

	// [Parsed_showinfo_0 @ 0x...] n:  12 pts:  12 pts_time:0.48 ...
	reShowInfo = regexp.MustCompile(
		`Parsed_showinfo.*\sn:\s*(\d+)\s.*pts_time:\s*(-?[0-9.]+|NOPTS)`)
)

// MatchInvalidInput reports whether stderr says the input could not be
// opened or demuxed.
func MatchInvalidInput(stderr string) bool {
	return reInvalidInput.MatchString(stderr)
}

// MatchNoVideo reports whether stderr says the input has no video stream.
func MatchNoVideo(stderr string) bool {
	return reNoVideo.MatchString(stderr)
}

// FrameInfo is one parsed showinfo line.
type FrameInfo struct {
	N int64
	// PTSTime is the presentation time in seconds; HasPTS is false when
	// ffmpeg reported NOPTS.
	PTSTime float64
	HasPTS  bool
}

// ParseShowInfo extracts the frame number and presentation time from a
// showinfo log line.
func ParseShowInfo(line string) (FrameInfo, bool) {
	m := reShowInfo.FindStringSubmatch(line)
	if m == nil {
		return FrameInfo{}, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return FrameInfo{}, false
	}
	fi := FrameInfo{N: n}
	if t, err := strconv.ParseFloat(m[2], 64); err == nil {
		fi.PTSTime = t
		fi.HasPTS = true
	}
	return fi, true
}
