// Package validator decides whether a rendered thumbnail is a usable image or
// a "blank" failed render.
//
// The heuristic is deterministic: for the same pixels and dimensions it always
// samples the same positions and returns the same answer.
package validator

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/sunshineplan/imgconv"

	"github.com/Iron-Ham/thumbcache/internal/errors"
)

// Default thresholds.
const (
	MinWidth         = 150
	MinHeight        = 200
	MaxSamples       = 200
	ChannelThreshold = 10
	MinValidRatio    = 0.05
)

// Validator holds the thresholds of the blank-image heuristic.
type Validator struct {
	// MinWidth and MinHeight are the smallest dimensions a render may have.
	MinWidth, MinHeight int
	// MaxSamples caps the number of sampled pixels; at most one pixel in a
	// hundred is sampled.
	MaxSamples int
	// ChannelThreshold is the value alpha and at least one color channel
	// must exceed for a sampled pixel to count as drawn.
	ChannelThreshold int
	// MinValidRatio is the fraction of drawn samples below which the image
	// is blank.
	MinValidRatio float64
}

// Default returns a Validator with the default thresholds.
func Default() Validator {
	return Validator{
		MinWidth:         MinWidth,
		MinHeight:        MinHeight,
		MaxSamples:       MaxSamples,
		ChannelThreshold: ChannelThreshold,
		MinValidRatio:    MinValidRatio,
	}
}

// IsBlank reports whether img is a blank render using the default thresholds.
func IsBlank(img image.Image) bool {
	return Default().IsBlank(img)
}

// IsBlank reports whether img is a blank render. A nil image, an image below
// the minimum size, or one with too few drawn pixels is blank.
func (v Validator) IsBlank(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()

	switch m := img.(type) {
	case *image.RGBA:
		return v.IsBlankPixels(m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, b.Dx(), b.Dy())
	case *image.NRGBA:
		return v.IsBlankPixels(m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride, b.Dx(), b.Dy())
	}

	return v.isBlank(b.Dx(), b.Dy(), func(x, y int) (r, g, bl, a uint8) {
		c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
		return c.R, c.G, c.B, c.A
	})
}

// IsBlankPixels applies the heuristic to a raw 8-bit RGBA buffer with the
// given row stride in bytes. A nil or short buffer is blank.
func (v Validator) IsBlankPixels(pix []byte, stride, width, height int) bool {
	if pix == nil || width <= 0 || height <= 0 || stride < width*4 {
		return true
	}
	if len(pix) < (height-1)*stride+width*4 {
		return true
	}
	return v.isBlank(width, height, func(x, y int) (r, g, b, a uint8) {
		i := y*stride + x*4
		return pix[i], pix[i+1], pix[i+2], pix[i+3]
	})
}

func (v Validator) isBlank(width, height int, at func(x, y int) (r, g, b, a uint8)) bool {
	if width < v.MinWidth || height < v.MinHeight {
		return true
	}

	offsets := sampleOffsets(width*height, v.MaxSamples)
	if len(offsets) == 0 {
		return true
	}

	threshold := uint8(v.ChannelThreshold)
	valid := 0
	for _, off := range offsets {
		r, g, b, a := at(off%width, off/width)
		if a > threshold && (r > threshold || g > threshold || b > threshold) {
			valid++
		}
	}

	return float64(valid)/float64(len(offsets)) < v.MinValidRatio
}

// sampleOffsets returns min(maxSamples, total/100) linear pixel offsets at a
// uniform stride starting from 0.
func sampleOffsets(total, maxSamples int) []int {
	count := min(maxSamples, total/100)
	if count <= 0 {
		return nil
	}
	step := total / count
	offsets := make([]int, count)
	for i := range offsets {
		offsets[i] = i * step
	}
	return offsets
}

// Decode decodes encoded image bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data: %w", errors.ErrInvalidImage)
	}
	img, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, errors.ErrInvalidImage)
	}
	return img, nil
}

// Check decodes data and validates it, returning the decoded image when it
// is usable. Every rejection wraps errors.ErrInvalidImage.
func (v Validator) Check(data []byte) (image.Image, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if v.IsBlank(img) {
		b := img.Bounds()
		return nil, fmt.Errorf("blank image %dx%d: %w", b.Dx(), b.Dy(), errors.ErrInvalidImage)
	}
	return img, nil
}
