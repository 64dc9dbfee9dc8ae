package ffmpeg

// Input describes one decode.
type Input struct {
	Path string
	// Format forces the demuxer (e.g. "mjpeg"); empty lets ffmpeg detect it.
	Format string
	// ShowInfo appends the showinfo filter so per-frame numbers and
	// timestamps are logged to stderr.
	ShowInfo bool
}

// DecodeArgs constructs the ffmpeg argument slice that decodes in to raw
// 8-bit gray frames on stdout.
func DecodeArgs(in Input) []string {
	args := make([]string, 0, 24)

	// --- Preamble ---
	args = append(args, "ffmpeg", "-hide_banner", "-nostdin")

	// showinfo logs at info level; otherwise only errors are needed.
	if in.ShowInfo {
		args = append(args, "-loglevel", "info")
	} else {
		args = append(args, "-loglevel", "error")
	}

	// --- Input ---
	if in.Format != "" {
		args = append(args, "-f", in.Format)
	}
	args = append(args, "-i", in.Path)

	// --- Stream selection and filters ---
	args = append(args, "-map", "0:v:0", "-an", "-sn", "-dn")
	if in.ShowInfo {
		args = append(args, "-vf", "showinfo")
	}

	// --- Output ---
	args = append(args, "-pix_fmt", "gray", "-f", "rawvideo", "pipe:1")
	return args
}
