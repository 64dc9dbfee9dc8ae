package container

import (
	"fmt"
	"image"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Options describes a new container.
type Options struct {
	Width, Height int
	// ExpectedFrames sizes the initial keep-frame capacity; the snapshot
	// capacity is ExpectedFrames/SaveInterval.
	ExpectedFrames int
	SaveInterval   int
	// MaskAttrs are stored on the mask dataset (min_area, thresh_C, ...).
	MaskAttrs map[string]int64
}

// Writer appends rows to a container that is not yet finished. A Writer is
// not safe for concurrent use.
type Writer struct {
	f    *os.File
	path string
	hdr  header
	enc  *zstd.Encoder
	off  int64

	mask, full *rowIndex
	framePos   []int64
	timePos    []float64
	maskAttrs  map[string]int64
	fullAttrs  map[string]int64

	scratch []byte
	done    bool
}

// Create creates (or truncates) path and writes an unfinished header.
func Create(path string, opts Options) (*Writer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", opts.Width, opts.Height)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		enc.Close()
		return nil, err
	}

	hdr := header{version: formatVersion, width: uint32(opts.Width), height: uint32(opts.Height)}
	if _, err := f.Write(hdr.marshal()); err != nil {
		f.Close()
		enc.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	fullCap := 0
	if opts.SaveInterval > 0 {
		fullCap = opts.ExpectedFrames / opts.SaveInterval
	}
	maskAttrs := map[string]int64{imageWhiteIsZero: 0}
	for k, v := range opts.MaskAttrs {
		maskAttrs[k] = v
	}

	return &Writer{
		f:         f,
		path:      path,
		hdr:       hdr,
		enc:       enc,
		off:       headerSize,
		mask:      newRowIndex(opts.ExpectedFrames, maskGrowRows),
		full:      newRowIndex(fullCap, fullGrowRows),
		framePos:  make([]int64, 0, opts.ExpectedFrames),
		timePos:   make([]float64, 0, opts.ExpectedFrames),
		maskAttrs: maskAttrs,
		fullAttrs: map[string]int64{"save_interval": int64(opts.SaveInterval), imageWhiteIsZero: 0},
	}, nil
}

// Path returns the file path passed to Create.
func (w *Writer) Path() string { return w.path }

// AppendMask appends one masked keep-frame.
func (w *Writer) AppendMask(img *image.Gray) error {
	return w.appendRow(w.mask, img)
}

// AppendFull appends one unmasked snapshot.
func (w *Writer) AppendFull(img *image.Gray) error {
	return w.appendRow(w.full, img)
}

// AppendPosition records the source frame index and timestamp (ms, NaN when
// unknown) of the next frame.
func (w *Writer) AppendPosition(index int64, timestampMS float64) {
	w.framePos = append(w.framePos, index)
	w.timePos = append(w.timePos, timestampMS)
}

// Rows returns the number of rows appended to dataset.
func (w *Writer) Rows(dataset string) int {
	switch dataset {
	case MaskDataset:
		return w.mask.len()
	case FullDataset:
		return w.full.len()
	}
	return 0
}

// Capacity returns the currently reserved row capacity of dataset.
func (w *Writer) Capacity(dataset string) int {
	switch dataset {
	case MaskDataset:
		return w.mask.capacity()
	case FullDataset:
		return w.full.capacity()
	}
	return 0
}

func (w *Writer) appendRow(idx *rowIndex, img *image.Gray) error {
	if w.done {
		return fmt.Errorf("append to closed container %s", w.path)
	}
	width, height := int(w.hdr.width), int(w.hdr.height)
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("row is %dx%d, container is %dx%d", b.Dx(), b.Dy(), width, height)
	}

	raw := img.Pix
	if img.Stride != width || len(img.Pix) < width*height {
		w.scratch = w.scratch[:0]
		for y := 0; y < height; y++ {
			w.scratch = append(w.scratch, img.Pix[y*img.Stride:y*img.Stride+width]...)
		}
		raw = w.scratch
	}
	rec := w.enc.EncodeAll(raw[:width*height], nil)
	if _, err := w.f.Write(rec); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	idx.append(extent{Off: w.off, Size: int64(len(rec))})
	w.off += int64(len(rec))
	return nil
}

// Finalize trims the keep-frame dataset to frames rows and the snapshot
// dataset to snapshots rows, writes the trailer, and only then sets the
// has_finished flag. The file is closed on return.
func (w *Writer) Finalize(frames, snapshots int) error {
	if w.done {
		return fmt.Errorf("finalize closed container %s", w.path)
	}
	if frames > w.mask.len() || snapshots > w.full.len() || frames > len(w.framePos) {
		w.Close()
		return fmt.Errorf("finalize %d/%d rows, have %d/%d", frames, snapshots, w.mask.len(), w.full.len())
	}
	w.mask.finalize(frames)
	w.full.finalize(snapshots)

	tr := trailer{
		Datasets: []datasetMeta{
			{Name: MaskDataset, Rows: w.mask.rows, Attrs: w.maskAttrs, Labels: imageLabels},
			{Name: FullDataset, Rows: w.full.rows, Attrs: w.fullAttrs, Labels: imageLabels},
		},
		FramePos: w.framePos[:frames],
		TimePos:  w.timePos[:frames],
	}
	data, err := msgpack.Marshal(&tr)
	if err != nil {
		w.Close()
		return fmt.Errorf("encode trailer: %w", err)
	}

	steps := []func() error{
		func() error { _, err := w.f.WriteAt(data, w.off); return err },
		w.f.Sync,
		func() error {
			w.hdr.trailerOff = uint64(w.off)
			w.hdr.trailerLen = uint64(len(data))
			_, err := w.f.WriteAt(w.hdr.marshal(), 0)
			return err
		},
		w.f.Sync,
		func() error { _, err := w.f.WriteAt([]byte{1}, offFinished); return err },
		w.f.Sync,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			w.Close()
			return fmt.Errorf("finalize %s: %w", w.path, err)
		}
	}
	w.hdr.finished = true
	return w.Close()
}

// Close releases the file without finishing it. Calling Close after
// Finalize is a no-op.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.enc.Close()
	return w.f.Close()
}
