// Package roi computes the region-of-interest mask that decides which pixels
// of a frame are kept.
//
// The mask is derived from one representative grayscale frame (normally the
// min projection of a short window of frames) with OpenCV: adaptive mean
// inverse threshold, contour tree, area and border filter on each contour,
// filled rasterization, border clearing, elliptical dilation, and the
// optional timestamp box. Mask pixels are 0 or 1 so masks can be applied by
// multiplication.
package roi

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Timestamp box burned into the top-left corner by the acquisition software.
const (
	TimestampWidth  = 480
	TimestampHeight = 16
)

// dilationIterations is fixed; DilationSize controls the kernel only.
const dilationIterations = 3

// borderMargin is how close to the image edge a contour point may come
// before the contour is rejected.
const borderMargin = 1

// filled is the OpenCV thickness that fills a shape.
const filled = -1

var (
	zero = color.RGBA{}
	one  = color.RGBA{R: 1, G: 1, B: 1, A: 1}
)

// Params configures mask computation. Field names mirror the attribute
// names stored on the keep-frame dataset.
type Params struct {
	MinArea         int
	MaxArea         int
	HasTimestamp    bool
	ThreshBlockSize int
	ThreshC         int
	DilationSize    int
}

// DefaultParams returns the parameters tuned for the standard rigs.
func DefaultParams() Params {
	return Params{
		MinArea:         100,
		MaxArea:         5000,
		HasTimestamp:    true,
		ThreshBlockSize: 61,
		ThreshC:         15,
		DilationSize:    9,
	}
}

// BlockSize returns ThreshBlockSize forced to an odd value.
func (p Params) BlockSize() int {
	if p.ThreshBlockSize%2 == 0 {
		return p.ThreshBlockSize + 1
	}
	return p.ThreshBlockSize
}

// Compute returns a new {0,1} mask with the same bounds as img.
func Compute(img *image.Gray, p Params) (*image.Gray, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	if w == 0 || h == 0 {
		return out, nil
	}

	src, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.AdaptiveThreshold(src, &thresh, 255, gocv.AdaptiveThresholdMean,
		gocv.ThresholdBinaryInv, p.BlockSize(), float32(p.ThreshC))

	contours := gocv.FindContours(thresh, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC1)
	defer mask.Close()
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if nearBorder(c.ToPoints(), w, h) {
			continue
		}
		area := gocv.ContourArea(c)
		if area < float64(p.MinArea) || area > float64(p.MaxArea) {
			continue
		}
		gocv.DrawContours(&mask, contours, i, one, filled)
	}

	// A filled contour on the edge leaves a line behind.
	gocv.Rectangle(&mask, image.Rect(0, 0, w, h), zero, 1)

	if p.DilationSize > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(p.DilationSize, p.DilationSize))
		defer kernel.Close()
		for i := 0; i < dilationIterations; i++ {
			gocv.Dilate(mask, &mask, kernel)
		}
	}

	if p.HasTimestamp {
		gocv.Rectangle(&mask, image.Rect(0, 0, TimestampWidth, TimestampHeight), one, filled)
	}

	fromMat(out, mask)
	return out, nil
}

// nearBorder reports whether any contour point lies within borderMargin of
// the image edge.
func nearBorder(pts []image.Point, w, h int) bool {
	for _, pt := range pts {
		if pt.X <= borderMargin || pt.Y <= borderMargin || pt.X >= w-1-borderMargin || pt.Y >= h-1-borderMargin {
			return true
		}
	}
	return false
}

// Apply zeroes every pixel of frame whose mask value is 0. Applying the same
// mask twice is a no-op.
func Apply(frame, mask *image.Gray) error {
	b := frame.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil
	}
	f, err := toMat(frame)
	if err != nil {
		return err
	}
	defer f.Close()
	m, err := toMat(mask)
	if err != nil {
		return err
	}
	defer m.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Multiply(f, m, &dst)
	fromMat(frame, dst)
	return nil
}

// MinProjection writes the pixel-wise minimum of frames into dst. All frames
// must share dst's bounds; an empty frames slice leaves dst untouched.
func MinProjection(dst *image.Gray, frames []*image.Gray) error {
	b := dst.Bounds()
	if len(frames) == 0 || b.Dx() == 0 || b.Dy() == 0 {
		return nil
	}
	first, err := toMat(frames[0])
	if err != nil {
		return err
	}
	acc := first.Clone()
	first.Close()
	defer acc.Close()

	for _, f := range frames[1:] {
		m, err := toMat(f)
		if err != nil {
			return err
		}
		gocv.Min(acc, m, &acc)
		m.Close()
	}
	fromMat(dst, acc)
	return nil
}

// toMat wraps img's pixels in a single-channel Mat. The Mat reads img's
// memory, so img must outlive it.
func toMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, compactPix(img))
	if err != nil {
		return m, fmt.Errorf("roi: wrap %dx%d frame: %w", b.Dx(), b.Dy(), err)
	}
	return m, nil
}

// fromMat copies a single-channel Mat into dst, which must have its size.
func fromMat(dst *image.Gray, m gocv.Mat) {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	pix := m.ToBytes()
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], pix[y*w:y*w+w])
	}
}

// compactPix returns img's pixels as a tightly packed w*h slice.
func compactPix(img *image.Gray) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if img.Stride == w {
		return img.Pix[:w*h]
	}
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		copy(out[y*w:y*w+w], img.Pix[y*img.Stride:y*img.Stride+w])
	}
	return out
}
