// Package compress is the streaming compression engine: it reads one video,
// masks each window of frames with a shared ROI mask, and writes the result
// to a masked-video container.
//
// A job moves through INIT (open source, create container), STREAMING
// (decode, snapshot, buffer, mask, append), FINALIZING (flush the trailing
// window, close the source, trim datasets, write trailer, set the completion
// flag) and ends in DONE or FAILED. A failed job never sets the completion flag, so the next
// batch pass sees its output as unfinished and recovers it.
package compress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/backmassage/vidmask/internal/container"
	"github.com/backmassage/vidmask/internal/framesource"
	"github.com/backmassage/vidmask/internal/progress"
)

// progressEvery is the frame interval between progress updates.
const progressEvery = 500

// OpenFunc opens a frame source. framesource.Open in production.
type OpenFunc func(ctx context.Context, path string) (framesource.Source, error)

// Logger is the minimal logging interface needed by the compressor.
type Logger interface {
	Debug(bool, string, ...interface{})
}

// Task is one video to compress.
type Task struct {
	Source string
	// Output is the final container path.
	Output string
	// StagingDir receives the container while it is written and, with
	// CopyVideo, the copied source. Empty means the directory of Output.
	StagingDir string
	CopyVideo  bool
	Settings   Settings
}

// Result summarizes a finished job.
type Result struct {
	Output      string
	Frames      int
	Snapshots   int
	InputBytes  int64
	OutputBytes int64
	Elapsed     time.Duration
}

// Compressor runs tasks. The zero value is usable: it opens sources with
// framesource.Open and reports nothing.
type Compressor struct {
	Open     OpenFunc
	Progress progress.Reporter
	Log      Logger
	Verbose  bool
}

// Run compresses one task. On error the container, if created, is left
// with its completion flag unset. The source is closed before the flag is
// written, and a close error fails the job.
func (c *Compressor) Run(ctx context.Context, t Task) (Result, error) {
	start := time.Now()
	res := Result{Output: t.Output}
	s := t.Settings
	if err := s.Validate(); err != nil {
		return res, err
	}

	stageDir := t.StagingDir
	if stageDir == "" {
		stageDir = filepath.Dir(t.Output)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return res, fmt.Errorf("create staging dir: %w", err)
	}

	input := t.Source
	copied := filepath.Join(stageDir, filepath.Base(t.Source))
	if t.CopyVideo && copied != t.Source {
		c.debug("Copying %s -> %s", t.Source, copied)
		if err := copyFile(t.Source, copied); err != nil {
			return res, fmt.Errorf("copy video: %w", err)
		}
		defer os.Remove(copied)
		input = copied
	}
	if fi, err := os.Stat(t.Source); err == nil {
		res.InputBytes = fi.Size()
	}

	// --- INIT ---
	src, err := c.open(ctx, input)
	if err != nil {
		return res, err
	}
	released := false
	defer func() {
		if !released {
			src.Close()
		}
	}()

	w, h := src.Dimensions()
	if w <= 0 || h <= 0 {
		return res, fmt.Errorf("%w: %dx%d", framesource.ErrDimension, w, h)
	}

	staged := filepath.Join(stageDir, filepath.Base(t.Output))
	cw, err := container.Create(staged, container.Options{
		Width:          w,
		Height:         h,
		ExpectedFrames: s.ExpectedFrames,
		SaveInterval:   s.SaveFullInterval,
		MaskAttrs:      maskAttrs(s.Mask),
	})
	if err != nil {
		return res, fmt.Errorf("create container: %w", err)
	}

	frames, snapshots, err := c.stream(ctx, src, cw, t, w, h)
	if err != nil {
		cw.Close()
		return res, err
	}

	// --- FINALIZING ---
	// The source goes first: a decoder that died mid-file reports it here.
	released = true
	if err := src.Close(); err != nil {
		cw.Close()
		return res, fmt.Errorf("close source: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cw.Close()
		return res, err
	}
	if err := cw.Finalize(frames, snapshots); err != nil {
		return res, err
	}
	if staged != t.Output {
		if err := moveFile(staged, t.Output); err != nil {
			return res, fmt.Errorf("move output: %w", err)
		}
	}

	res.Frames = frames
	res.Snapshots = snapshots
	if fi, err := os.Stat(t.Output); err == nil {
		res.OutputBytes = fi.Size()
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// stream runs the STREAMING state and flushes the trailing window. It
// returns the number of frames read and snapshots written.
func (c *Compressor) stream(ctx context.Context, src framesource.Source, cw *container.Writer, t Task, w, h int) (int, int, error) {
	s := t.Settings
	buf := newFrameBuffer(s.BufferSize, w, h)
	task := t.Source
	rep := c.Progress
	if rep == nil {
		rep = progress.Nop{}
	}

	flush := func() error {
		frames, err := buf.mask(s.Mask)
		if err != nil {
			return fmt.Errorf("mask window: %w", err)
		}
		for _, f := range frames {
			if err := cw.AppendMask(f); err != nil {
				return err
			}
		}
		return nil
	}

	n, snapshots := 0, 0
	for s.MaxFrames == 0 || n < s.MaxFrames {
		if err := ctx.Err(); err != nil {
			return n, snapshots, err
		}
		slot := buf.next()
		fi, err := src.Next(slot)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, snapshots, err
		}
		n++

		if (n-1)%s.SaveFullInterval == 0 {
			if err := cw.AppendFull(slot); err != nil {
				return n, snapshots, err
			}
			snapshots++
		}
		idx := fi.Index
		if !fi.HasIndex {
			idx = int64(n - 1)
		}
		cw.AppendPosition(idx, fi.TimestampMS)

		if buf.commit() {
			if err := flush(); err != nil {
				return n, snapshots, err
			}
		}
		if n%progressEvery == 0 {
			rep.Update(task, n, s.MaxFrames)
		}
	}

	// A killed decoder ends its stream like a clean EOF.
	if err := ctx.Err(); err != nil {
		return n, snapshots, err
	}
	if err := flush(); err != nil {
		return n, snapshots, err
	}
	return n, snapshots, nil
}

func (c *Compressor) open(ctx context.Context, path string) (framesource.Source, error) {
	if c.Open != nil {
		return c.Open(ctx, path)
	}
	return framesource.Open(ctx, path)
}

func (c *Compressor) debug(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Debug(c.Verbose, format, args...)
	}
}

// moveFile renames src to dst, falling back to copy and remove when they are
// on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
