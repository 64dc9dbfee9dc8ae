// Package check provides system diagnostics (--check mode) and pre-pipeline
// dependency validation (CheckDeps) for ffmpeg and ffprobe.
package check

import (
	"errors"
	"os/exec"
	"strings"

	"gocv.io/x/gocv"

	"github.com/backmassage/vidmask/internal/ffmpeg"
)

// Sentinel errors returned by CheckDeps when a required tool is missing or
// cannot decode.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
	ErrDecodeFailed    = errors.New("ffmpeg test decode to gray rawvideo failed")
)

// Logger is the minimal logging interface needed by RunCheck.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// lookPath and runSilent are swapped in tests.
var (
	lookPath  = exec.LookPath
	runSilent = func(args []string) bool {
		return exec.Command(args[0], args[1:]...).Run() == nil
	}
)

// RunCheck runs the --check flow: the linked OpenCV, ffmpeg and ffprobe
// versions, then test decodes through both readers. It reports whether
// everything passed.
func RunCheck(log Logger) bool {
	log.Info("=== System Check ===")
	log.Success("OpenCV: %s (gocv %s)", gocv.OpenCVVersion(), gocv.Version())
	ok := checkTool(log, "ffmpeg")
	ok = checkTool(log, "ffprobe") && ok
	if !ok {
		return false
	}

	log.Info("Testing gray rawvideo decode...")
	if runSilent(testDecodeArgs(false)) {
		log.Success("Video decode works")
	} else {
		log.Error("Video test decode failed")
		ok = false
	}

	log.Info("Testing showinfo frame timing...")
	if runSilent(testDecodeArgs(true)) {
		log.Success("showinfo filter works")
	} else {
		log.Warn("showinfo test failed; .mjpg sources will fail to open")
	}
	return ok
}

// checkTool verifies name is on PATH and logs the first line of -version.
func checkTool(log Logger, name string) bool {
	if _, err := lookPath(name); err != nil {
		log.Error("%s not found", name)
		return false
	}
	out, err := exec.Command(name, "-version").Output()
	if err != nil {
		log.Warn("%s found but -version failed: %v", name, err)
		return true
	}
	firstLine := strings.TrimSpace(string(out))
	if idx := strings.Index(firstLine, "\n"); idx > 0 {
		firstLine = firstLine[:idx]
	}
	log.Success("%s: %s", name, firstLine)
	return true
}

// CheckDeps is the pre-pipeline validation: ffmpeg and ffprobe must be on
// PATH and ffmpeg must decode a synthetic clip to gray frames.
func CheckDeps() error {
	if _, err := lookPath("ffmpeg"); err != nil {
		return ErrFfmpegNotFound
	}
	if _, err := lookPath("ffprobe"); err != nil {
		return ErrFfprobeNotFound
	}
	if !runSilent(testDecodeArgs(false)) {
		return ErrDecodeFailed
	}
	return nil
}

// testDecodeArgs decodes a short lavfi test pattern the same way sources
// are decoded. runSilent leaves stdout unset, so the frames go to the null
// device.
func testDecodeArgs(showInfo bool) []string {
	return ffmpeg.DecodeArgs(ffmpeg.Input{
		Path:     "testsrc=size=64x48:rate=5:duration=0.4",
		Format:   "lavfi",
		ShowInfo: showInfo,
	})
}
