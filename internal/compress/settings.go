package compress

import (
	"errors"
	"fmt"

	"github.com/backmassage/vidmask/internal/roi"
)

// Settings configures one compression job.
type Settings struct {
	BufferSize       int // Frames per ROI window.
	SaveFullInterval int // Snapshot stride.
	MaxFrames        int // 0 means the whole video.
	ExpectedFrames   int // Initial keep-frame capacity of the container.
	Mask             roi.Params
}

// DefaultSettings returns the defaults used when no parameter file or flag
// overrides a value.
func DefaultSettings() Settings {
	return Settings{
		BufferSize:       25,
		SaveFullInterval: 5000,
		MaxFrames:        0,
		ExpectedFrames:   15000,
		Mask:             roi.DefaultParams(),
	}
}

// Validate rejects settings that cannot produce a container.
func (s Settings) Validate() error {
	switch {
	case s.BufferSize < 1:
		return fmt.Errorf("buffer_size must be at least 1 (got %d)", s.BufferSize)
	case s.SaveFullInterval < 1:
		return fmt.Errorf("save_full_interval must be at least 1 (got %d)", s.SaveFullInterval)
	case s.MaxFrames < 0:
		return fmt.Errorf("max_frames must not be negative (got %d)", s.MaxFrames)
	case s.ExpectedFrames < 0:
		return fmt.Errorf("expected_frames must not be negative (got %d)", s.ExpectedFrames)
	case s.Mask.MinArea < 0 || s.Mask.MaxArea < s.Mask.MinArea:
		return fmt.Errorf("invalid area range [%d, %d]", s.Mask.MinArea, s.Mask.MaxArea)
	case s.Mask.ThreshBlockSize < 3:
		return fmt.Errorf("thresh_block_size must be at least 3 (got %d)", s.Mask.ThreshBlockSize)
	case s.Mask.DilationSize < 0:
		return errors.New("dilation_size must not be negative")
	}
	return nil
}

// Overrides carries only the parameters that were explicitly supplied, by a
// parameter file or on the command line. Nil fields keep the value they are
// applied on top of.
type Overrides struct {
	BufferSize       *int          `yaml:"buffer_size"`
	SaveFullInterval *int          `yaml:"save_full_interval"`
	MaxFrames        *int          `yaml:"max_frames"`
	ExpectedFrames   *int          `yaml:"expected_frames"`
	Mask             MaskOverrides `yaml:"mask"`
}

// MaskOverrides is the mask section of Overrides.
type MaskOverrides struct {
	MinArea         *int  `yaml:"min_area"`
	MaxArea         *int  `yaml:"max_area"`
	HasTimestamp    *bool `yaml:"has_timestamp"`
	ThreshBlockSize *int  `yaml:"thresh_block_size"`
	ThreshC         *int  `yaml:"thresh_C"`
	DilationSize    *int  `yaml:"dilation_size"`
}

// Apply copies every non-nil field of o into s.
func (o Overrides) Apply(s *Settings) {
	setInt(&s.BufferSize, o.BufferSize)
	setInt(&s.SaveFullInterval, o.SaveFullInterval)
	setInt(&s.MaxFrames, o.MaxFrames)
	setInt(&s.ExpectedFrames, o.ExpectedFrames)

	m := o.Mask
	setInt(&s.Mask.MinArea, m.MinArea)
	setInt(&s.Mask.MaxArea, m.MaxArea)
	if m.HasTimestamp != nil {
		s.Mask.HasTimestamp = *m.HasTimestamp
	}
	setInt(&s.Mask.ThreshBlockSize, m.ThreshBlockSize)
	setInt(&s.Mask.ThreshC, m.ThreshC)
	setInt(&s.Mask.DilationSize, m.DilationSize)
}

// IsZero reports whether no field is set.
func (o Overrides) IsZero() bool {
	m := o.Mask
	return o.BufferSize == nil && o.SaveFullInterval == nil && o.MaxFrames == nil &&
		o.ExpectedFrames == nil && m.MinArea == nil && m.MaxArea == nil &&
		m.HasTimestamp == nil && m.ThreshBlockSize == nil && m.ThreshC == nil &&
		m.DilationSize == nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// maskAttrs returns the attributes stored on the keep-frame dataset.
func maskAttrs(p roi.Params) map[string]int64 {
	ts := int64(0)
	if p.HasTimestamp {
		ts = 1
	}
	return map[string]int64{
		"min_area":          int64(p.MinArea),
		"max_area":          int64(p.MaxArea),
		"has_timestamp":     ts,
		"thresh_block_size": int64(p.BlockSize()),
		"thresh_C":          int64(p.ThreshC),
		"dilation_size":     int64(p.DilationSize),
	}
}
