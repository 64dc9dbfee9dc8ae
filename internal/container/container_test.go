package container

import (
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func grayFilled(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func newWriter(t *testing.T, expected int) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip"+Extension)
	w, err := Create(path, Options{
		Width: 6, Height: 4,
		ExpectedFrames: expected,
		SaveInterval:   5,
		MaskAttrs:      map[string]int64{"min_area": 100, "thresh_C": 15},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return w, path
}

func TestFinalize_RoundTrip(t *testing.T) {
	w, path := newWriter(t, 2)
	for i := 0; i < 3; i++ {
		if err := w.AppendMask(grayFilled(6, 4, uint8(10*i))); err != nil {
			t.Fatalf("AppendMask: %v", err)
		}
		w.AppendPosition(int64(100+i), float64(i)*40)
	}
	w.timePos[2] = math.NaN()
	if err := w.AppendFull(grayFilled(6, 4, 200)); err != nil {
		t.Fatalf("AppendFull: %v", err)
	}
	if err := w.Finalize(3, 1); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	info, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !info.Finished || info.MaskRows != 3 || info.FullRows != 1 {
		t.Errorf("Probe = %+v, want finished with 3/1 rows", info)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	dst := image.NewGray(image.Rect(0, 0, 6, 4))
	if err := r.ReadRow(MaskDataset, 2, dst); err != nil {
		t.Fatalf("ReadRow: %v", err)
	}
	if dst.Pix[0] != 20 {
		t.Errorf("mask row 2 pixel = %d, want 20", dst.Pix[0])
	}
	if err := r.ReadRow(FullDataset, 0, dst); err != nil {
		t.Fatalf("ReadRow full: %v", err)
	}
	if dst.Pix[5] != 200 {
		t.Errorf("full row pixel = %d, want 200", dst.Pix[5])
	}

	pos := r.FramePositions()
	if len(pos) != 3 || pos[0] != 100 || pos[2] != 102 {
		t.Errorf("FramePositions = %v", pos)
	}
	ts := r.TimePositions()
	if ts[1] != 40 || !math.IsNaN(ts[2]) {
		t.Errorf("TimePositions = %v", ts)
	}
	if v, ok := r.Attr(MaskDataset, "thresh_C"); !ok || v != 15 {
		t.Errorf("thresh_C = %d, %v", v, ok)
	}
	if v, ok := r.Attr(FullDataset, "save_interval"); !ok || v != 5 {
		t.Errorf("full_data save_interval = %d, %v, want 5", v, ok)
	}
	if _, ok := r.Attr(MaskDataset, "save_interval"); ok {
		t.Error("save_interval stored on the mask dataset")
	}
	for _, ds := range []string{MaskDataset, FullDataset} {
		if got := r.Label(ds, "IMAGE_SUBCLASS"); got != "IMAGE_GRAYSCALE" {
			t.Errorf("%s IMAGE_SUBCLASS = %q", ds, got)
		}
		if got := r.Label(ds, "IMAGE_VERSION"); got != "1.2" {
			t.Errorf("%s IMAGE_VERSION = %q", ds, got)
		}
		if v, ok := r.Attr(ds, "IMAGE_WHITE_IS_ZERO"); !ok || v != 0 {
			t.Errorf("%s IMAGE_WHITE_IS_ZERO = %d, %v", ds, v, ok)
		}
	}
}

func TestFinalize_TruncatesToRequestedRows(t *testing.T) {
	w, path := newWriter(t, 10)
	for i := 0; i < 4; i++ {
		w.AppendMask(grayFilled(6, 4, 1))
		w.AppendPosition(int64(i), 0)
	}
	if err := w.Finalize(3, 0); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	info, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.MaskRows != 3 || info.FullRows != 0 {
		t.Errorf("rows = %d/%d, want 3/0", info.MaskRows, info.FullRows)
	}
}

func TestFinalize_MoreRowsThanWritten(t *testing.T) {
	w, path := newWriter(t, 10)
	w.AppendMask(grayFilled(6, 4, 1))
	w.AppendPosition(0, 0)
	if err := w.Finalize(2, 0); err == nil {
		t.Fatal("expected error")
	}
	info, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Finished {
		t.Error("container finished after failed Finalize")
	}
}

func TestRowCapacityGrowth(t *testing.T) {
	w, _ := newWriter(t, 2)
	defer w.Close()
	if got := w.Capacity(MaskDataset); got != 2 {
		t.Fatalf("initial mask capacity = %d, want 2", got)
	}
	for i := 0; i < 3; i++ {
		w.AppendMask(grayFilled(6, 4, 0))
	}
	if got := w.Capacity(MaskDataset); got != 2+maskGrowRows {
		t.Errorf("mask capacity = %d, want %d", got, 2+maskGrowRows)
	}
	w.AppendFull(grayFilled(6, 4, 0))
	w.AppendFull(grayFilled(6, 4, 0))
	if got := w.Capacity(FullDataset); got != 2 {
		t.Errorf("full capacity = %d, want 2", got)
	}
}

func TestClose_LeavesUnfinished(t *testing.T) {
	w, path := newWriter(t, 4)
	w.AppendMask(grayFilled(6, 4, 3))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Finished || info.MaskRows != 0 {
		t.Errorf("Probe = %+v, want unfinished", info)
	}
	if _, err := Open(path); !errors.Is(err, ErrNotFinished) {
		t.Errorf("Open err = %v, want ErrNotFinished", err)
	}
}

func TestProbe_Corrupt(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", make([]byte, headerSize)},
		{"finished without trailer", header{version: formatVersion, finished: true, width: 1, height: 1}.marshal()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+Extension)
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Probe(path); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Probe err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestAppend_DimensionMismatch(t *testing.T) {
	w, _ := newWriter(t, 1)
	defer w.Close()
	if err := w.AppendMask(grayFilled(5, 4, 0)); err == nil {
		t.Error("expected dimension error")
	}
}

func TestCreate_RejectsZeroDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero"+Extension)
	if _, err := Create(path, Options{Width: 0, Height: 4}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file created for zero dimensions")
	}
}
