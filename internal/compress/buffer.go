package compress

import (
	"image"

	"github.com/backmassage/vidmask/internal/roi"
)

// frameBuffer is the fixed window of frames that share one ROI mask. Slots
// are allocated once and reused for the whole job.
type frameBuffer struct {
	slots  []*image.Gray
	filled int
	proj   *image.Gray
}

func newFrameBuffer(size, w, h int) *frameBuffer {
	r := image.Rect(0, 0, w, h)
	b := &frameBuffer{slots: make([]*image.Gray, size), proj: image.NewGray(r)}
	for i := range b.slots {
		b.slots[i] = image.NewGray(r)
	}
	return b
}

// next returns the slot the next frame is decoded into.
func (b *frameBuffer) next() *image.Gray { return b.slots[b.filled] }

// commit marks the slot returned by next as holding a frame and reports
// whether the window is now full.
func (b *frameBuffer) commit() bool {
	b.filled++
	return b.filled == len(b.slots)
}

// mask computes one ROI mask from the min projection of the filled slots,
// applies it to each of them, and returns them in order. The buffer is
// empty afterwards.
func (b *frameBuffer) mask(p roi.Params) ([]*image.Gray, error) {
	frames := b.slots[:b.filled]
	b.filled = 0
	if len(frames) == 0 {
		return nil, nil
	}
	if err := roi.MinProjection(b.proj, frames); err != nil {
		return nil, err
	}
	m, err := roi.Compute(b.proj, p)
	if err != nil {
		return nil, err
	}
	for _, f := range frames {
		if err := roi.Apply(f, m); err != nil {
			return nil, err
		}
	}
	return frames, nil
}
