package roi

import (
	"image"
	"image/color"
	"testing"
)

// frame returns a w x h image filled with bg.
func frame(w, h int, bg uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = bg
	}
	return img
}

func fillRect(img *image.Gray, x0, y0, x1, y1 int, v uint8) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func countSet(m *image.Gray) int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

func compute(t *testing.T, img *image.Gray, p Params) *image.Gray {
	t.Helper()
	m, err := Compute(img, p)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return m
}

func noTimestamp() Params {
	p := DefaultParams()
	p.HasTimestamp = false
	return p
}

func TestCompute_DarkSquareDilated(t *testing.T) {
	img := frame(64, 64, 200)
	// 12x12 square: contour area 121.
	fillRect(img, 26, 26, 38, 38, 20)

	mask := compute(t, img, noTimestamp())

	for y := 26; y < 38; y++ {
		for x := 26; x < 38; x++ {
			if mask.GrayAt(x, y).Y != 1 {
				t.Fatalf("object pixel (%d,%d) not in mask", x, y)
			}
		}
	}
	// Three 9x9 ellipse dilations reach 12 pixels along the axes.
	if mask.GrayAt(14, 31).Y != 1 || mask.GrayAt(49, 31).Y != 1 {
		t.Error("dilation did not reach 12 px horizontally")
	}
	if mask.GrayAt(13, 31).Y != 0 || mask.GrayAt(50, 31).Y != 0 {
		t.Error("dilation reached beyond 12 px horizontally")
	}
	if mask.GrayAt(31, 14).Y != 1 || mask.GrayAt(31, 13).Y != 0 {
		t.Error("unexpected vertical dilation extent")
	}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := mask.GrayAt(x, y).Y
			if v > 1 {
				t.Fatalf("mask value %d at (%d,%d), want 0 or 1", v, x, y)
			}
			inside := x >= 14 && x <= 49 && y >= 14 && y <= 49
			if v == 1 && !inside {
				t.Fatalf("mask set outside dilated neighborhood at (%d,%d)", x, y)
			}
		}
	}
}

func TestCompute_RejectsBorderTouching(t *testing.T) {
	img := frame(64, 64, 200)
	fillRect(img, 0, 20, 12, 32, 20)

	if n := countSet(compute(t, img, noTimestamp())); n != 0 {
		t.Errorf("mask has %d pixels, want 0 for border-touching object", n)
	}
}

func TestCompute_AreaFilter(t *testing.T) {
	// A size x size square has contour area (size-1)^2.
	tests := []struct {
		name string
		size int
		want bool
	}{
		{"too small", 10, false},
		{"lower bound", 11, true},
		{"upper bound", 32, true},
		{"too large", 33, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := frame(96, 96, 200)
			fillRect(img, 30, 30, 30+tt.size, 30+tt.size, 20)
			p := noTimestamp()
			p.MaxArea = 961
			p.DilationSize = 0

			got := countSet(compute(t, img, p)) > 0
			if got != tt.want {
				t.Errorf("kept = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompute_FillsEnclosedHoles(t *testing.T) {
	img := frame(64, 64, 200)
	// 12x12 ring, 2 px thick: outer contour area 121, hole contour area 81.
	fillRect(img, 20, 20, 32, 32, 20)
	fillRect(img, 22, 22, 30, 30, 200)

	p := noTimestamp()
	p.DilationSize = 0
	mask := compute(t, img, p)

	if n := countSet(mask); n != 144 {
		t.Fatalf("mask has %d pixels, want 144", n)
	}
	if mask.GrayAt(25, 25).Y != 1 {
		t.Error("hole not filled")
	}
}

func TestCompute_TimestampBox(t *testing.T) {
	img := frame(100, 40, 120)
	mask := compute(t, img, DefaultParams())

	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
			want := uint8(0)
			if y < TimestampHeight {
				want = 1
			}
			if got := mask.GrayAt(x, y).Y; got != want {
				t.Fatalf("mask(%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestCompute_EmptyImage(t *testing.T) {
	mask := compute(t, image.NewGray(image.Rect(0, 0, 0, 0)), DefaultParams())
	if len(mask.Pix) != 0 {
		t.Errorf("got %d pixels, want 0", len(mask.Pix))
	}
}

func TestBlockSize_ForcedOdd(t *testing.T) {
	p := Params{ThreshBlockSize: 60}
	if got := p.BlockSize(); got != 61 {
		t.Errorf("BlockSize() = %d, want 61", got)
	}
	p.ThreshBlockSize = 61
	if got := p.BlockSize(); got != 61 {
		t.Errorf("BlockSize() = %d, want 61", got)
	}
}

func TestNearBorder(t *testing.T) {
	tests := []struct {
		name string
		pts  []image.Point
		want bool
	}{
		{"interior", []image.Point{{2, 2}, {17, 9}}, false},
		{"second column", []image.Point{{1, 5}}, true},
		{"second to last row", []image.Point{{5, 10}}, true},
		{"last column", []image.Point{{19, 5}}, true},
	}
	for _, tt := range tests {
		if got := nearBorder(tt.pts, 20, 12); got != tt.want {
			t.Errorf("%s: nearBorder = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCompute_RejectsObjectOneFromEdge(t *testing.T) {
	img := frame(64, 64, 200)
	fillRect(img, 1, 20, 13, 32, 20)

	if n := countSet(compute(t, img, noTimestamp())); n != 0 {
		t.Errorf("mask has %d pixels, want 0", n)
	}
}

func TestCompute_PaddedStride(t *testing.T) {
	full := frame(80, 64, 200)
	img := full.SubImage(image.Rect(8, 0, 72, 64)).(*image.Gray)
	fillRect(img, 34, 26, 46, 38, 20)

	mask := compute(t, img, noTimestamp())
	if mask.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v, want %v", mask.Bounds(), img.Bounds())
	}
	if mask.GrayAt(40, 31).Y != 1 || mask.GrayAt(9, 1).Y != 0 {
		t.Error("mask not aligned with a sub-image")
	}
}

func TestApply_ZeroesOutsideMaskAndIsIdempotent(t *testing.T) {
	img := frame(8, 8, 77)
	mask := image.NewGray(img.Bounds())
	fillRect(mask, 2, 2, 4, 4, 1)

	if err := Apply(img, mask); err != nil {
		t.Fatal(err)
	}
	first := append([]uint8(nil), img.Pix...)
	if err := Apply(img, mask); err != nil {
		t.Fatal(err)
	}

	for i, v := range img.Pix {
		if v != first[i] {
			t.Fatalf("second Apply changed pixel %d", i)
		}
		if mask.Pix[i] == 0 && v != 0 {
			t.Fatalf("pixel %d outside mask = %d, want 0", i, v)
		}
		if mask.Pix[i] == 1 && v != 77 {
			t.Fatalf("pixel %d inside mask = %d, want 77", i, v)
		}
	}
}

func TestMinProjection(t *testing.T) {
	a := frame(4, 4, 50)
	b := frame(4, 4, 90)
	b.SetGray(1, 1, color.Gray{Y: 10})
	dst := image.NewGray(a.Bounds())

	if err := MinProjection(dst, []*image.Gray{a, b}); err != nil {
		t.Fatal(err)
	}

	if got := dst.GrayAt(1, 1).Y; got != 10 {
		t.Errorf("dst(1,1) = %d, want 10", got)
	}
	if got := dst.GrayAt(0, 0).Y; got != 50 {
		t.Errorf("dst(0,0) = %d, want 50", got)
	}
}
