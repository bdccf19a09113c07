// Package rendertest provides a deterministic renderer.Factory for tests.
//
// Outcomes are scripted per key, where the key is Params.BodyImage. Every
// session is tracked so tests can assert that teardown ran on every path.
package rendertest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/thumbcache/internal/renderer"
)

// Outcome scripts how a session behaves.
type Outcome int

const (
	// Valid completes and captures a fully drawn image.
	Valid Outcome = iota
	// Blank completes and captures a transparent image.
	Blank
	// Fallback completes with IsFallback set.
	Fallback
	// Hang never signals completion.
	Hang
	// Empty completes and captures zero bytes.
	Empty
	// CaptureFails completes but CaptureToPNG returns an error.
	CaptureFails
	// OpenFails makes Factory.Open return an error.
	OpenFails
)

// ErrScripted is returned by scripted open and capture failures.
var ErrScripted = errors.New("rendertest: scripted failure")

// Factory is a scripted renderer.Factory.
type Factory struct {
	mu sync.Mutex

	// Delay is how long a completing session waits before closing Done.
	Delay time.Duration
	// Default is the outcome for keys without a script.
	Default Outcome

	scripts map[string][]Outcome
	opens   map[string]int

	sessions      []*Session
	active        int
	maxConcurrent int
}

// NewFactory creates a Factory whose sessions complete after delay.
func NewFactory(delay time.Duration) *Factory {
	return &Factory{
		Delay:   delay,
		scripts: make(map[string][]Outcome),
		opens:   make(map[string]int),
	}
}

// Script sets the outcomes for successive opens of key. The last outcome
// repeats once the script is exhausted.
func (f *Factory) Script(key string, outcomes ...Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[key] = outcomes
}

func (f *Factory) nextOutcome(key string) Outcome {
	script, ok := f.scripts[key]
	if !ok || len(script) == 0 {
		return f.Default
	}
	n := f.opens[key]
	if n >= len(script) {
		return script[len(script)-1]
	}
	return script[n]
}

// Open implements renderer.Factory.
func (f *Factory) Open(_ context.Context, params renderer.Params) (renderer.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := params.BodyImage
	outcome := f.nextOutcome(key)
	f.opens[key]++
	if outcome == OpenFails {
		return nil, ErrScripted
	}

	s := &Session{
		factory: f,
		key:     key,
		params:  params,
		outcome: outcome,
		done:    make(chan struct{}),
		Opened:  time.Now(),
	}
	if outcome != Hang {
		s.timer = time.AfterFunc(f.Delay, func() { close(s.done) })
	}

	f.sessions = append(f.sessions, s)
	f.active++
	if f.active > f.maxConcurrent {
		f.maxConcurrent = f.active
	}
	return s, nil
}

// Opens returns how many sessions were opened for key.
func (f *Factory) Opens(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[key]
}

// TotalOpens returns the number of Open calls across all keys.
func (f *Factory) TotalOpens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.opens {
		total += n
	}
	return total
}

// Active returns the number of sessions opened but not yet closed.
func (f *Factory) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// MaxConcurrent returns the highest number of simultaneously open sessions.
func (f *Factory) MaxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxConcurrent
}

// Sessions returns a snapshot of every session opened so far.
func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}

// AssertAllClosed fails t if any session was not closed.
func (f *Factory) AssertAllClosed(t testing.TB) {
	t.Helper()
	for _, s := range f.Sessions() {
		if !s.Closed() {
			t.Errorf("session for %q (outcome %d) was never closed", s.key, s.outcome)
		}
	}
}

// Session is a scripted renderer.Session.
type Session struct {
	factory *Factory
	key     string
	params  renderer.Params
	outcome Outcome
	done    chan struct{}
	timer   *time.Timer

	// Opened is when the session was created.
	Opened time.Time

	mu       sync.Mutex
	closed   bool
	captures int
}

// Done implements renderer.Session.
func (s *Session) Done() <-chan struct{} { return s.done }

// IsFallback implements renderer.Session.
func (s *Session) IsFallback() bool { return s.outcome == Fallback }

// CaptureToPNG implements renderer.Session.
func (s *Session) CaptureToPNG(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.captures++
	s.mu.Unlock()

	switch s.outcome {
	case Empty:
		return nil, nil
	case CaptureFails:
		return nil, ErrScripted
	case Blank:
		return EncodePNG(image.NewRGBA(image.Rect(0, 0, s.params.Width, s.params.Height)))
	default:
		return EncodePNG(Filled(s.params.Width, s.params.Height))
	}
}

// Close implements renderer.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	s.factory.mu.Lock()
	s.factory.active--
	s.factory.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Captures returns how many times CaptureToPNG was called.
func (s *Session) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// Key returns the script key the session was opened with.
func (s *Session) Key() string { return s.key }

// Filled returns a w x h image in which every pixel is drawn.
func Filled(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: 180, G: 120, B: 60, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ renderer.Factory = (*Factory)(nil)
