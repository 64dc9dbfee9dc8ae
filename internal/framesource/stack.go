package framesource

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/backmassage/vidmask/internal/container"
)

// stackSource replays the keep-frames of a finished container, with the
// frame positions and timestamps stored alongside them.
type stackSource struct {
	r    *container.Reader
	w, h int
	i    int
	rows int
	pos  []int64
	ts   []float64
}

func openStack(path string) (Source, error) {
	r, err := container.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	w, h := r.Dimensions()
	if err := checkDimensions(w, h); err != nil {
		r.Close()
		return nil, err
	}
	return &stackSource{
		r:    r,
		w:    w,
		h:    h,
		rows: r.Rows(container.MaskDataset),
		pos:  r.FramePositions(),
		ts:   r.TimePositions(),
	}, nil
}

func (s *stackSource) Kind() Kind             { return KindStack }
func (s *stackSource) Dimensions() (int, int) { return s.w, s.h }
func (s *stackSource) Close() error           { return s.r.Close() }

func (s *stackSource) Next(dst *image.Gray) (FrameInfo, error) {
	if err := checkDst(dst, s.w, s.h); err != nil {
		return FrameInfo{}, err
	}
	if s.i >= s.rows {
		return FrameInfo{}, io.EOF
	}
	if err := s.r.ReadRow(container.MaskDataset, s.i, dst); err != nil {
		return FrameInfo{}, err
	}
	fi := FrameInfo{Index: int64(s.i), HasIndex: true, TimestampMS: math.NaN()}
	if s.i < len(s.pos) {
		fi.Index = s.pos[s.i]
	}
	if s.i < len(s.ts) {
		fi.TimestampMS = s.ts[s.i]
	}
	s.i++
	return fi, nil
}
