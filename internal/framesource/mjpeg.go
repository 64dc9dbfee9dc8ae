package framesource

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/backmassage/vidmask/internal/ffmpeg"
)

// mjpegSource decodes raw MJPEG captures. Capture software writes these
// without a usable container index, so frame numbers and timestamps come
// from ffmpeg's showinfo log instead of the frame rate.
type mjpegSource struct {
	pipe *ffmpeg.Pipe
	w, h int
	n    int64
	buf  []byte
}

func openMJPEG(ctx context.Context, path string) (Source, error) {
	pr, err := inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	w, h := pr.Dimensions()
	args := ffmpeg.DecodeArgs(ffmpeg.Input{Path: path, Format: "mjpeg", ShowInfo: true})
	pipe, err := ffmpeg.Start(ctx, args, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &mjpegSource{pipe: pipe, w: w, h: h, buf: make([]byte, w*h)}, nil
}

func (s *mjpegSource) Kind() Kind             { return KindMJPEG }
func (s *mjpegSource) Dimensions() (int, int) { return s.w, s.h }
func (s *mjpegSource) Close() error           { return s.pipe.Close() }

func (s *mjpegSource) Next(dst *image.Gray) (FrameInfo, error) {
	if err := checkDst(dst, s.w, s.h); err != nil {
		return FrameInfo{}, err
	}
	if err := readFrame(s.pipe, s.buf, s.n); err != nil {
		return FrameInfo{}, err
	}
	copyPacked(dst, s.buf, s.w, s.h)
	s.n++

	fi := FrameInfo{TimestampMS: math.NaN()}
	info, ok := <-s.pipe.Info()
	if !ok {
		return fi, nil
	}
	fi.Index, fi.HasIndex = info.N, true
	if info.HasPTS {
		fi.TimestampMS = info.PTSTime * 1000
	}
	return fi, nil
}
