package framesource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/backmassage/vidmask/internal/ffmpeg"
)

// videoSource decodes an ordinary video file through an ffmpeg pipe. Frame
// numbers are ordinals and timestamps are derived from the probed frame rate.
type videoSource struct {
	pipe *ffmpeg.Pipe
	w, h int
	fps  float64
	n    int64
	buf  []byte
}

func openVideo(ctx context.Context, path string) (Source, error) {
	pr, err := inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	w, h := pr.Dimensions()
	pipe, err := ffmpeg.Start(ctx, ffmpeg.DecodeArgs(ffmpeg.Input{Path: path}), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &videoSource{
		pipe: pipe,
		w:    w,
		h:    h,
		fps:  pr.FrameRate(),
		buf:  make([]byte, w*h),
	}, nil
}

func (s *videoSource) Kind() Kind             { return KindVideo }
func (s *videoSource) Dimensions() (int, int) { return s.w, s.h }
func (s *videoSource) Close() error           { return s.pipe.Close() }

func (s *videoSource) Next(dst *image.Gray) (FrameInfo, error) {
	if err := checkDst(dst, s.w, s.h); err != nil {
		return FrameInfo{}, err
	}
	if err := readFrame(s.pipe, s.buf, s.n); err != nil {
		return FrameInfo{}, err
	}
	copyPacked(dst, s.buf, s.w, s.h)

	fi := FrameInfo{Index: s.n, HasIndex: true, TimestampMS: math.NaN()}
	if s.fps > 0 {
		fi.TimestampMS = float64(s.n) * 1000 / s.fps
	}
	s.n++
	return fi, nil
}

// readFrame reads one frame, mapping a short final read to an I/O error.
func readFrame(p *ffmpeg.Pipe, buf []byte, n int64) error {
	err := p.ReadFrame(buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("frame %d truncated: %w", n, err)
	default:
		return fmt.Errorf("read frame %d: %w", n, err)
	}
}
