package container

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Info is the result of Probe.
type Info struct {
	Finished      bool
	Width, Height int
	MaskRows      int
	FullRows      int
}

// Probe reads the header of path and, when the container is finished, the
// row counts from its trailer. An unfinished container is not an error:
// Info.Finished is false and the row counts are zero.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	hdr, err := readHeader(f)
	if err != nil {
		return Info{}, err
	}
	info := Info{Width: int(hdr.width), Height: int(hdr.height)}
	if !hdr.finished {
		return info, nil
	}
	tr, err := readTrailer(f, hdr)
	if err != nil {
		return Info{}, err
	}
	info.Finished = true
	if ds := tr.dataset(MaskDataset); ds != nil {
		info.MaskRows = len(ds.Rows)
	}
	if ds := tr.dataset(FullDataset); ds != nil {
		info.FullRows = len(ds.Rows)
	}
	return info, nil
}

// Reader reads a finished container.
type Reader struct {
	f   *os.File
	hdr header
	tr  trailer
	dec *zstd.Decoder
	buf []byte
}

// Open opens a finished container. Containers whose has_finished flag is 0
// yield ErrNotFinished.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	hdr, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if !hdr.finished {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotFinished)
	}
	tr, err := readTrailer(f, hdr)
	if err != nil {
		f.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Reader{f: f, hdr: hdr, tr: tr, dec: dec}, nil
}

// Dimensions returns the frame width and height.
func (r *Reader) Dimensions() (int, int) { return int(r.hdr.width), int(r.hdr.height) }

// Rows returns the row count of dataset.
func (r *Reader) Rows(dataset string) int {
	if ds := r.tr.dataset(dataset); ds != nil {
		return len(ds.Rows)
	}
	return 0
}

// Attr returns an integer attribute of dataset.
func (r *Reader) Attr(dataset, key string) (int64, bool) {
	ds := r.tr.dataset(dataset)
	if ds == nil {
		return 0, false
	}
	v, ok := ds.Attrs[key]
	return v, ok
}

// Label returns a string label of dataset (CLASS, IMAGE_SUBCLASS, ...).
func (r *Reader) Label(dataset, key string) string {
	if ds := r.tr.dataset(dataset); ds != nil {
		return ds.Labels[key]
	}
	return ""
}

// FramePositions returns the stored source frame indices, one per keep-frame.
func (r *Reader) FramePositions() []int64 { return r.tr.FramePos }

// TimePositions returns the stored timestamps in ms (NaN when unknown).
func (r *Reader) TimePositions() []float64 { return r.tr.TimePos }

// ReadRow decodes row i of dataset into dst, which must match the container
// dimensions.
func (r *Reader) ReadRow(dataset string, i int, dst *image.Gray) error {
	ds := r.tr.dataset(dataset)
	if ds == nil {
		return fmt.Errorf("no dataset %q", dataset)
	}
	if i < 0 || i >= len(ds.Rows) {
		return fmt.Errorf("%s row %d out of range [0,%d)", dataset, i, len(ds.Rows))
	}
	w, h := r.Dimensions()
	b := dst.Bounds()
	if b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("destination is %dx%d, container is %dx%d", b.Dx(), b.Dy(), w, h)
	}

	e := ds.Rows[i]
	if cap(r.buf) < int(e.Size) {
		r.buf = make([]byte, e.Size)
	}
	rec := r.buf[:e.Size]
	if _, err := r.f.ReadAt(rec, e.Off); err != nil {
		return fmt.Errorf("%w: read %s row %d: %v", ErrCorrupt, dataset, i, err)
	}
	raw, err := r.dec.DecodeAll(rec, make([]byte, 0, w*h))
	if err != nil {
		return fmt.Errorf("%w: decode %s row %d: %v", ErrCorrupt, dataset, i, err)
	}
	if len(raw) != w*h {
		return fmt.Errorf("%w: %s row %d has %d bytes, want %d", ErrCorrupt, dataset, i, len(raw), w*h)
	}
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], raw[y*w:y*w+w])
	}
	return nil
}

// Close releases the file and the decoder.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

func readHeader(f *os.File) (header, error) {
	b := make([]byte, headerSize)
	if _, err := io.ReadFull(f, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return header{}, fmt.Errorf("%w: short header", ErrCorrupt)
		}
		return header{}, err
	}
	return parseHeader(b)
}

func readTrailer(f *os.File, hdr header) (trailer, error) {
	var tr trailer
	st, err := f.Stat()
	if err != nil {
		return tr, err
	}
	end := hdr.trailerOff + hdr.trailerLen
	if hdr.trailerOff < headerSize || hdr.trailerLen == 0 || end > uint64(st.Size()) {
		return tr, fmt.Errorf("%w: trailer out of bounds", ErrCorrupt)
	}
	data := make([]byte, hdr.trailerLen)
	if _, err := f.ReadAt(data, int64(hdr.trailerOff)); err != nil {
		return tr, fmt.Errorf("%w: read trailer: %v", ErrCorrupt, err)
	}
	if err := msgpack.Unmarshal(data, &tr); err != nil {
		return tr, fmt.Errorf("%w: decode trailer: %v", ErrCorrupt, err)
	}
	if len(tr.FramePos) != len(tr.TimePos) {
		return tr, fmt.Errorf("%w: %d frame positions, %d timestamps", ErrCorrupt, len(tr.FramePos), len(tr.TimePos))
	}
	return tr, nil
}
