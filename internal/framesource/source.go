// Package framesource reads grayscale frames from the three supported input
// families: ordinary video files, MJPEG captures, and previously written
// masked-video containers.
//
// The variant is chosen once from the file extension by Open; callers only
// see the Source interface.
package framesource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/backmassage/vidmask/internal/container"
	"github.com/backmassage/vidmask/internal/probe"
)

var (
	// ErrUnreadable is returned when a source cannot be opened or has no
	// decodable video stream.
	ErrUnreadable = errors.New("source unreadable")
	// ErrDimension is returned for zero-sized sources and for destination
	// frames whose size does not match the source.
	ErrDimension = errors.New("invalid frame dimensions")
	// ErrMissingSidecar is returned by SidecarFiles when a single-object
	// recording lacks its metadata files.
	ErrMissingSidecar = errors.New("missing sidecar file")
)

// Kind identifies the reader variant.
type Kind int

const (
	KindVideo Kind = iota
	KindMJPEG
	KindStack
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindMJPEG:
		return "mjpeg"
	case KindStack:
		return "stack"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FrameInfo describes one delivered frame. HasIndex is false when the
// source cannot report its own frame number; TimestampMS is NaN when no
// timestamp is known.
type FrameInfo struct {
	Index       int64
	HasIndex    bool
	TimestampMS float64
}

// Source delivers frames in capture order.
type Source interface {
	Kind() Kind
	Dimensions() (width, height int)
	// Next decodes the next frame into dst, which must match Dimensions.
	// It returns io.EOF after the last frame.
	Next(dst *image.Gray) (FrameInfo, error)
	Close() error
}

const mjpegExtension = ".mjpg"

// Video extensions decoded by the generic reader (lowercase, with leading dot).
var videoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".m4v":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".ts":   true,
	".m2ts": true,
	".mpg":  true,
	".mpeg": true,
	".vob":  true,
	".ogv":  true,
}

// KindOf returns the reader variant for path, or false when the extension is
// not supported.
func KindOf(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == container.Extension:
		return KindStack, true
	case ext == mjpegExtension:
		return KindMJPEG, true
	case videoExtensions[ext]:
		return KindVideo, true
	}
	return 0, false
}

// Extensions returns every supported extension, sorted.
func Extensions() []string {
	exts := []string{container.Extension, mjpegExtension}
	for ext := range videoExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Open opens path with the reader matching its extension.
func Open(ctx context.Context, path string) (Source, error) {
	kind, ok := KindOf(path)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrUnreadable, filepath.Ext(path))
	}
	switch kind {
	case KindStack:
		return openStack(path)
	case KindMJPEG:
		return openMJPEG(ctx, path)
	default:
		return openVideo(ctx, path)
	}
}

// Probe checks that path can be opened as a source without decoding it.
func Probe(ctx context.Context, path string) error {
	kind, ok := KindOf(path)
	if !ok {
		return fmt.Errorf("%w: unsupported extension %q", ErrUnreadable, filepath.Ext(path))
	}
	if kind == KindStack {
		info, err := container.Probe(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		if !info.Finished {
			return fmt.Errorf("%w: %s", ErrUnreadable, container.ErrNotFinished)
		}
		return checkDimensions(info.Width, info.Height)
	}
	_, err := inspect(ctx, path)
	return err
}

// SidecarFiles returns the .info.xml and .log.csv files that accompany a
// single-object recording.
func SidecarFiles(path string) ([]string, error) {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	files := []string{stem + ".info.xml", stem + ".log.csv"}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingSidecar, filepath.Base(f))
		}
	}
	return files, nil
}

// inspect runs ffprobe and validates the primary video stream.
func inspect(ctx context.Context, path string) (*probe.ProbeResult, error) {
	pr, err := probe.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if pr.PrimaryVideo == nil {
		return nil, fmt.Errorf("%w: no video stream", ErrUnreadable)
	}
	if err := checkDimensions(pr.Dimensions()); err != nil {
		return nil, err
	}
	return pr, nil
}

func checkDimensions(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrDimension, w, h)
	}
	return nil
}

// checkDst verifies dst matches the source size.
func checkDst(dst *image.Gray, w, h int) error {
	b := dst.Bounds()
	if b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("%w: destination %dx%d, source %dx%d", ErrDimension, b.Dx(), b.Dy(), w, h)
	}
	return nil
}

// copyPacked copies a tightly packed w*h buffer into dst.
func copyPacked(dst *image.Gray, src []byte, w, h int) {
	if dst.Stride == w {
		copy(dst.Pix, src[:w*h])
		return
	}
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src[y*w:y*w+w])
	}
}
