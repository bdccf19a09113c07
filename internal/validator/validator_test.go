package validator

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Iron-Ham/thumbcache/internal/errors"
)

// opaque is a pixel that counts as drawn.
var opaque = color.RGBA{R: 200, G: 40, B: 40, A: 255}

// withValidSamples returns a 150x200 transparent image where exactly n of the
// sampled pixels are drawn. At that size 200 pixels are sampled with a stride
// of 150, which lands on the first pixel of each row.
func withValidSamples(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 150, 200))
	for y := 0; y < n; y++ {
		img.SetRGBA(0, y, opaque)
	}
	return img
}

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestSampleOffsets(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		max       int
		wantCount int
		wantStep  int
	}{
		{"minimum size", 150 * 200, 200, 200, 150},
		{"capped by max samples", 150 * 150, 200, 200, 112},
		{"one percent below cap", 100 * 150, 200, 150, 100},
		{"tiny", 99, 200, 0, 0},
		{"large", 1000 * 1000, 200, 200, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sampleOffsets(tt.total, tt.max)
			if len(got) != tt.wantCount {
				t.Fatalf("len(sampleOffsets()) = %d, want %d", len(got), tt.wantCount)
			}
			if len(got) > 1 && got[1]-got[0] != tt.wantStep {
				t.Errorf("step = %d, want %d", got[1]-got[0], tt.wantStep)
			}
			if len(got) > 0 && got[len(got)-1] >= tt.total {
				t.Errorf("last offset %d out of range %d", got[len(got)-1], tt.total)
			}
		})
	}
}

func TestIsBlank_RatioBoundary(t *testing.T) {
	tests := []struct {
		name  string
		valid int
		want  bool
	}{
		{"exactly five percent is not blank", 10, false},
		{"just below five percent is blank", 9, true},
		{"none valid", 0, true},
		{"all valid", 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlank(withValidSamples(tt.valid)); got != tt.want {
				t.Errorf("IsBlank() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlank_MinimumDimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want bool
	}{
		{"too narrow", 149, 200, true},
		{"too short", 150, 199, true},
		{"minimum", 150, 200, false},
		{"large", 600, 800, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlank(filled(tt.w, tt.h, opaque)); got != tt.want {
				t.Errorf("IsBlank(%dx%d opaque) = %v, want %v", tt.w, tt.h, got, tt.want)
			}
		})
	}
}

func TestIsBlank_PixelRules(t *testing.T) {
	tests := []struct {
		name string
		c    color.RGBA
		want bool
	}{
		{"transparent", color.RGBA{}, true},
		{"alpha at threshold", color.RGBA{R: 10, G: 10, B: 10, A: 10}, true},
		{"opaque black", color.RGBA{A: 255}, true},
		{"opaque dark grey at threshold", color.RGBA{R: 10, G: 10, B: 10, A: 255}, true},
		{"one channel above threshold", color.RGBA{B: 11, A: 255}, false},
		{"faint but drawn", color.RGBA{R: 11, A: 11}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlank(filled(150, 200, tt.c)); got != tt.want {
				t.Errorf("IsBlank(%v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestIsBlank_NilAndUnavailable(t *testing.T) {
	if !IsBlank(nil) {
		t.Error("IsBlank(nil) = false, want true")
	}
	if !Default().IsBlankPixels(nil, 600, 150, 200) {
		t.Error("IsBlankPixels(nil) = false, want true")
	}
	if !Default().IsBlankPixels(make([]byte, 10), 600, 150, 200) {
		t.Error("IsBlankPixels(short buffer) = false, want true")
	}
}

func TestIsBlank_Deterministic(t *testing.T) {
	img := withValidSamples(10)
	first := IsBlank(img)
	for i := 0; i < 20; i++ {
		if IsBlank(img) != first {
			t.Fatal("IsBlank() returned different results for identical input")
		}
	}
}

func TestIsBlank_GenericImageMatchesRGBA(t *testing.T) {
	src := withValidSamples(10)
	gray := image.NewNRGBA64(src.Bounds())
	for y := 0; y < 200; y++ {
		for x := 0; x < 150; x++ {
			gray.Set(x, y, src.At(x, y))
		}
	}
	if IsBlank(gray) != IsBlank(src) {
		t.Error("generic image path disagrees with RGBA fast path")
	}
}

func TestIsBlank_SubImage(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 400, 400))
	for y := 0; y < 200; y++ {
		big.SetRGBA(100, 100+y, opaque)
	}
	sub := big.SubImage(image.Rect(100, 100, 250, 300))
	if IsBlank(sub) {
		t.Error("IsBlank(sub-image with drawn first column) = true, want false")
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestCheck(t *testing.T) {
	v := Default()

	if _, err := v.Check(nil); !errors.Is(err, errors.ErrInvalidImage) {
		t.Errorf("Check(nil) error = %v, want ErrInvalidImage", err)
	}
	if _, err := v.Check([]byte("not an image")); !errors.Is(err, errors.ErrInvalidImage) {
		t.Errorf("Check(garbage) error = %v, want ErrInvalidImage", err)
	}
	if _, err := v.Check(encodePNG(t, withValidSamples(0))); !errors.Is(err, errors.ErrInvalidImage) {
		t.Errorf("Check(blank) error = %v, want ErrInvalidImage", err)
	}

	img, err := v.Check(encodePNG(t, filled(150, 200, opaque)))
	if err != nil {
		t.Fatalf("Check(valid) error = %v", err)
	}
	if img.Bounds().Dx() != 150 || img.Bounds().Dy() != 200 {
		t.Errorf("decoded size = %v", img.Bounds())
	}
}
