// Package ggrender renders keyring scenes offscreen with gogpu/gg.
//
// A session loads the body artwork in the background, swings the chain as a
// damped pendulum until it settles and then draws the scene on demand. Body images that cannot
// be loaded degrade the session to a placeholder, reported via IsFallback.
package ggrender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gogpu/gg"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/errors"
	"github.com/Iron-Ham/thumbcache/internal/logging"
	"github.com/Iron-Ham/thumbcache/internal/renderer"
)

// Defaults for a Factory.
const (
	DefaultFrameInterval = time.Second / 60
	DefaultFetchTimeout  = 10 * time.Second
)

// ErrSessionClosed is returned when capturing from a closed session.
var ErrSessionClosed = errors.New("render session closed")

// Option configures a Factory.
type Option func(*Factory)

// WithFrameInterval sets the wall-clock time between simulation frames.
// Zero runs the simulation as fast as possible.
func WithFrameInterval(d time.Duration) Option {
	return func(f *Factory) { f.frameInterval = d }
}

// WithFetchTimeout sets the timeout for downloading remote body images.
func WithFetchTimeout(d time.Duration) Option {
	return func(f *Factory) { f.fetchTimeout = d }
}

// WithHTTPClient replaces the client used for remote body images.
func WithHTTPClient(c *resty.Client) Option {
	return func(f *Factory) { f.client = c }
}

// WithFs sets the filesystem local body images are read from.
func WithFs(fs afero.Fs) Option {
	return func(f *Factory) { f.fs = fs }
}

// WithLogger sets the factory logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// Factory opens keyring render sessions.
type Factory struct {
	frameInterval time.Duration
	fetchTimeout  time.Duration
	client        *resty.Client
	fs            afero.Fs
	logger        *logging.Logger
}

var _ renderer.Factory = (*Factory)(nil)

// NewFactory creates a Factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		frameInterval: DefaultFrameInterval,
		fetchTimeout:  DefaultFetchTimeout,
		fs:            afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = resty.New().SetTimeout(f.fetchTimeout)
	}
	if f.logger == nil {
		f.logger = logging.NopLogger()
	}
	return f
}

// Open starts a session. The body image is loaded by the session itself, so
// Done covers the load as well as the chain settling. Cancelling ctx aborts
// the load.
func (f *Factory) Open(ctx context.Context, params renderer.Params) (renderer.Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		params: params,
		dc:     gg.NewContext(params.Width, params.Height),
		chain:  newChain(),
		cancel: cancel,
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.run(ctx, f)
	return s, nil
}

// Session is one keyring render.
type Session struct {
	params renderer.Params
	cancel context.CancelFunc

	mu         sync.Mutex
	dc         *gg.Context
	chain      *chain
	body       *gg.ImageBuf
	bodyBounds image.Rectangle
	fallback   bool
	closed     bool

	done     chan struct{}
	stop     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

var _ renderer.Session = (*Session)(nil)

// Done is closed once the body image is loaded and the chain has come to rest.
func (s *Session) Done() <-chan struct{} { return s.done }

// IsFallback reports whether the body image could not be loaded.
func (s *Session) IsFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Frames returns the number of simulated frames so far.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain.frames
}

func (s *Session) run(ctx context.Context, f *Factory) {
	defer close(s.exited)

	body, err := f.loadBody(ctx, s.params.BodyImage)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if err != nil {
		f.logger.Warn("body image unavailable, rendering placeholder",
			"body_image", s.params.BodyImage,
			"error", err.Error(),
		)
		s.fallback = true
	} else {
		s.body = gg.ImageBufFromImage(body)
		s.bodyBounds = body.Bounds()
	}
	s.mu.Unlock()

	s.simulate(f.frameInterval)
}

func (s *Session) simulate(interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-s.stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-s.stop:
				return
			default:
			}
		}

		s.mu.Lock()
		rest := s.chain.step()
		s.mu.Unlock()
		if rest {
			close(s.done)
			return
		}
	}
}

// CaptureToPNG draws the current frame and encodes it as PNG.
func (s *Session) CaptureToPNG(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	if err := s.draw(s.dc, s.chain.angle); err != nil {
		return nil, fmt.Errorf("draw keyring: %w", err)
	}

	var buf bytes.Buffer
	if err := s.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Close aborts a pending body load, stops the simulation, waits for it to
// exit and releases the drawing context.
func (s *Session) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.stop)
		<-s.exited

		s.mu.Lock()
		s.closed = true
		err = s.dc.Close()
		s.mu.Unlock()
	})
	return err
}

// Keyring geometry in unzoomed pixels.
const (
	ringRadius   = 14.0
	ringWidth    = 4.0
	linkSpacing  = 10.0
	linkRadius   = 3.0
	bodyFraction = 0.6
)

func (s *Session) draw(dc *gg.Context, angle float64) error {
	p := s.params
	zoom := p.Zoom
	w, h := float64(p.Width), float64(p.Height)

	// Hook at the top center. Everything hangs from it and swings by angle.
	hookX := w / 2
	hookY := h*0.08 + p.HookOffset*zoom

	dc.ClearWithColor(gg.RGB(0.96, 0.95, 0.93))

	dc.Push()
	defer dc.Pop()
	dc.Translate(hookX, hookY)
	dc.Rotate(angle)
	dc.SetLineWidth(ringWidth * zoom)

	// Ring.
	dc.SetRGB(0.72, 0.72, 0.76)
	r := ringRadius * zoom
	switch p.Style {
	case "square":
		dc.DrawRoundedRectangle(-r, 0, 2*r, 2*r, r/3)
	default:
		dc.DrawCircle(0, r, r)
	}
	if err := dc.Stroke(); err != nil {
		return err
	}

	// Chain.
	links := max(p.ChainLength, minChainLength)
	y := 2 * r
	for i := 0; i < links; i++ {
		y += linkSpacing * zoom
		switch p.ChainStyle {
		case "link":
			dc.DrawEllipse(0, y, linkRadius*zoom*0.6, linkRadius*zoom*1.4)
			if err := dc.Stroke(); err != nil {
				return err
			}
		default:
			dc.DrawCircle(0, y, linkRadius*zoom)
			if err := dc.Fill(); err != nil {
				return err
			}
		}
	}
	y += linkSpacing * zoom

	// Body, scaled to fit a box below the chain.
	box := math.Min(w, h) * bodyFraction * zoom
	if s.body == nil {
		dc.SetRGB(0.85, 0.3, 0.35)
		dc.DrawRoundedRectangle(-box/2, y, box, box, box/8)
		return dc.Fill()
	}

	bw, bh := float64(s.bodyBounds.Dx()), float64(s.bodyBounds.Dy())
	scale := math.Min(box/bw, box/bh)
	dw, dh := bw*scale, bh*scale
	dc.DrawImageEx(s.body, gg.DrawImageOptions{
		X:             -dw / 2,
		Y:             y,
		DstWidth:      dw,
		DstHeight:     dh,
		Interpolation: gg.InterpBilinear,
		Opacity:       1.0,
		BlendMode:     gg.BlendNormal,
	})
	return nil
}
