// Package renderer defines the contract between the capture coordinator and
// an offscreen renderer that turns an entity's render parameters into pixels.
//
// A render is a [Session]: it is opened from [Params], signals completion by
// closing [Session.Done], reports whether it degraded to a placeholder via
// [Session.IsFallback], hands out PNG bytes via [Session.CaptureToPNG], and
// releases every renderer-side resource on [Session.Close].
package renderer

import (
	"context"
	"fmt"
)

// Params describes what to render and at which size.
type Params struct {
	// Style and ChainStyle discriminate ring and chain shapes (e.g. "round", "ball").
	Style      string `yaml:"style" json:"style"`
	ChainStyle string `yaml:"chain_style" json:"chain_style"`
	// BodyImage references the body artwork: a file path or an http(s) URL.
	BodyImage string `yaml:"body_image" json:"body_image"`
	// Width and Height are the target pixel size.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
	// Zoom scales the whole composition.
	Zoom float64 `yaml:"zoom" json:"zoom"`
	// HookOffset shifts the hook point vertically, in pixels before zoom.
	HookOffset float64 `yaml:"hook_offset" json:"hook_offset"`
	// ChainLength is the number of chain links.
	ChainLength int `yaml:"chain_length" json:"chain_length"`
}

// Validate reports parameters no renderer can honor.
func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid target size %dx%d", p.Width, p.Height)
	}
	if p.Zoom <= 0 {
		return fmt.Errorf("invalid zoom %v", p.Zoom)
	}
	if p.ChainLength < 0 {
		return fmt.Errorf("invalid chain length %d", p.ChainLength)
	}
	return nil
}

// Session is one in-progress offscreen render.
type Session interface {
	// Done is closed when the renderer has finished producing the scene.
	Done() <-chan struct{}
	// IsFallback reports whether the renderer degraded to a placeholder. It is
	// meaningful once Done is closed.
	IsFallback() bool
	// CaptureToPNG snapshots the current frame as PNG bytes.
	CaptureToPNG(ctx context.Context) ([]byte, error)
	// Close detaches the render graph, stops any animation or physics and
	// tears down the backing view. It must be safe to call more than once.
	Close() error
}

// Factory opens render sessions.
type Factory interface {
	Open(ctx context.Context, params Params) (Session, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, params Params) (Session, error)

// Open calls f.
func (f FactoryFunc) Open(ctx context.Context, params Params) (Session, error) {
	return f(ctx, params)
}
