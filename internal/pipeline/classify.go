package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/backmassage/vidmask/internal/container"
	"github.com/backmassage/vidmask/internal/framesource"
	"github.com/backmassage/vidmask/internal/naming"
	"github.com/backmassage/vidmask/internal/progress"
)

// classifyProgressEvery is the file interval between progress updates.
const classifyProgressEvery = 10

// State is the classification of one source video.
type State int

const (
	SourceGood   State = iota // No output yet; the source can be read.
	SourceBad                 // No output yet; the source cannot be read.
	FinishedGood              // Output exists and is complete.
	FinishedBad               // Output exists but is unfinished or corrupt.
)

func (s State) String() string {
	switch s {
	case SourceGood:
		return "source_good"
	case SourceBad:
		return "source_bad"
	case FinishedGood:
		return "finished_good"
	case FinishedBad:
		return "finished_bad"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Record is the classification of one source. Err explains SourceBad and
// FinishedBad records.
type Record struct {
	Source string
	Output string
	State  State
	Err    error
}

// Buckets holds every classified source in exactly one slice, each in
// discovery order.
type Buckets struct {
	SourceGood   []Record
	SourceBad    []Record
	FinishedGood []Record
	FinishedBad  []Record
}

func (b *Buckets) add(r Record) {
	switch r.State {
	case SourceGood:
		b.SourceGood = append(b.SourceGood, r)
	case SourceBad:
		b.SourceBad = append(b.SourceBad, r)
	case FinishedGood:
		b.FinishedGood = append(b.FinishedGood, r)
	case FinishedBad:
		b.FinishedBad = append(b.FinishedBad, r)
	}
}

// Len returns the number of classified sources.
func (b Buckets) Len() int {
	return len(b.SourceGood) + len(b.SourceBad) + len(b.FinishedGood) + len(b.FinishedBad)
}

// Counts returns the bucket sizes keyed by state name.
func (b Buckets) Counts() map[string]int {
	return map[string]int{
		SourceGood.String():   len(b.SourceGood),
		SourceBad.String():    len(b.SourceBad),
		FinishedGood.String(): len(b.FinishedGood),
		FinishedBad.String():  len(b.FinishedBad),
	}
}

// Sources returns the source paths of records.
func Sources(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Source
	}
	return out
}

// ProbeFunc checks that a source can be read. framesource.Probe in production.
type ProbeFunc func(ctx context.Context, path string) error

// Classifier decides the State of a source from the filesystem alone.
type Classifier struct {
	Mapper       *naming.Mapper
	SingleObject bool
	Probe        ProbeFunc
	Progress     progress.Reporter
}

// Classify returns the record for one source. It never modifies the
// filesystem, so calling it twice on unchanged state gives the same record.
func (c *Classifier) Classify(ctx context.Context, source string) Record {
	r := Record{Source: source, Output: c.Mapper.OutputPath(source)}

	if _, err := os.Stat(r.Output); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.State, r.Err = FinishedBad, err
			return r
		}
		if err := c.probe(ctx, source); err != nil {
			r.State, r.Err = SourceBad, err
			return r
		}
		r.State = SourceGood
		return r
	}

	info, err := container.Probe(r.Output)
	switch {
	case err != nil:
		r.State, r.Err = FinishedBad, err
	case !info.Finished:
		r.State, r.Err = FinishedBad, container.ErrNotFinished
	case info.MaskRows == 0:
		r.State, r.Err = FinishedBad, fmt.Errorf("%w: no frames", container.ErrCorrupt)
	default:
		r.State = FinishedGood
	}
	return r
}

func (c *Classifier) probe(ctx context.Context, source string) error {
	probe := c.Probe
	if probe == nil {
		probe = framesource.Probe
	}
	if err := probe(ctx, source); err != nil {
		return err
	}
	if c.SingleObject {
		if _, err := framesource.SidecarFiles(source); err != nil {
			return err
		}
	}
	return nil
}

// ClassifyAll classifies sources in order. Progress is reported every
// classifyProgressEvery files and once at the end.
func (c *Classifier) ClassifyAll(ctx context.Context, sources []string) Buckets {
	var b Buckets
	for i, src := range sources {
		b.add(c.Classify(ctx, src))
		if n := i + 1; c.Progress != nil && (n%classifyProgressEvery == 0 || n == len(sources)) {
			c.Progress.Update("classify", n, len(sources))
		}
	}
	return b
}
