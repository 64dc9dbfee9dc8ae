package display

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"small bytes", 512, "512 B"},
		{"exactly 1 KiB", 1024, "1.0 KiB"},
		{"1.5 KiB", 1536, "1.5 KiB"},
		{"1 MiB", 1024 * 1024, "1.0 MiB"},
		{"1 GiB", 1024 * 1024 * 1024, "1.0 GiB"},
		{"typical container 700 MiB", 734003200, "700.0 MiB"},
		{"4.7 GiB", 5046586572, "4.7 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormatRatio(t *testing.T) {
	tests := []struct {
		in, out int64
		want    string
	}{
		{1000, 120, "12% of original"},
		{1000, 1500, "150% of original"},
		{0, 10, "n/a"},
	}
	for _, tt := range tests {
		if got := FormatRatio(tt.in, tt.out); got != tt.want {
			t.Errorf("FormatRatio(%d, %d) = %q, want %q", tt.in, tt.out, got, tt.want)
		}
	}
}

func TestFormatFPS(t *testing.T) {
	if got := FormatFPS(500, 2*time.Second); got != "250.0 fps" {
		t.Errorf("FormatFPS = %q", got)
	}
	if got := FormatFPS(10, 0); got != "- fps" {
		t.Errorf("FormatFPS(0s) = %q", got)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	if !strings.Contains(buf.String(), `\_/ |_|`) {
		t.Errorf("banner = %q", buf.String())
	}
}
