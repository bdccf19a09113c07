// Package internal contains integration tests that verify the render pipeline
// packages work together: renderer, coordinator, render cache, widget
// notifier and lifecycle signals, all communicating over one event bus.
package internal

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/capture"
	"github.com/Iron-Ham/thumbcache/internal/catalog"
	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/lifecycle"
	"github.com/Iron-Ham/thumbcache/internal/rendercache"
	"github.com/Iron-Ham/thumbcache/internal/renderer/ggrender"
	"github.com/Iron-Ham/thumbcache/internal/renderer/rendertest"
	"github.com/Iron-Ham/thumbcache/internal/widget"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) record(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func artwork(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y * 4), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const manifest = `defaults:
  width: 300
  height: 400
  zoom: 1
  chain_length: 5
entities:
  - id: fox
    name: Brass Fox
    style: round
    chain_style: ball
    body_image: art/fox.png
  - id: owl
    name: Gifted Owl
    variant: gift
    style: square
    chain_style: link
    body_image: art/owl.png
`

// TestRenderPipeline renders manifest entities with the gg renderer and checks
// that bytes, the metadata index and widget refreshes all line up.
func TestRenderPipeline(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/work/keyrings.yaml", []byte(manifest), 0o644)
	_ = afero.WriteFile(fs, "/work/art/fox.png", artwork(t), 0o644)
	_ = afero.WriteFile(fs, "/work/art/owl.png", artwork(t), 0o644)

	bus := event.NewBus()
	rec := &recorder{}
	bus.SubscribeAll(rec.record)

	cache := rendercache.New(rendercache.Config{
		Fs:        fs,
		Root:      "/cache",
		Category:  "keyrings",
		Refresher: widget.NewNotifier(bus),
	}, rendercache.WithWidgetKind("keyring"))

	coord := capture.New(capture.Config{
		Cache:     cache,
		Renderers: ggrender.NewFactory(ggrender.WithFs(fs), ggrender.WithFrameInterval(0)),
		Bus:       bus,
	},
		capture.WithPollInterval(2*time.Millisecond),
		capture.WithStabilizationDelay(time.Millisecond),
	)
	defer coord.Close()

	m, err := catalog.Load(fs, "/work/keyrings.yaml")
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	for _, e := range m.Entities() {
		if got := coord.RequestCapture(e); got != capture.Started {
			t.Fatalf("RequestCapture(%s) = %v, want started", e.ID, got)
		}
	}
	coord.Wait()

	if n := rec.count(event.TypeCaptureSucceeded); n != 2 {
		t.Fatalf("succeeded events = %d, want 2; events: %v", n, rec.types())
	}
	if !cache.Exists("fox", rendercache.Thumbnail) || !cache.Exists("owl", rendercache.Gift) {
		t.Error("rendered variants missing from the cache")
	}

	index := cache.LoadIndex()
	if len(index) != 1 || index[0].ID != "fox" || index[0].RelativePath != "keyrings/fox.png" {
		t.Errorf("index = %+v, want only fox", index)
	}
	if n := rec.count(event.TypeWidgetRefresh); n != 1 {
		t.Errorf("widget refresh events = %d, want 1", n)
	}

	// A second request hits the cache.
	fox, _ := m.Find("fox")
	if got := coord.RequestCapture(fox); got != capture.Cached {
		t.Errorf("RequestCapture(fox) after render = %v, want cached", got)
	}
}

// TestLifecycleSignals delivers background and foreground signals through
// the signal source and checks that in-flight renders are cancelled.
func TestLifecycleSignals(t *testing.T) {
	bus := event.NewBus()
	rec := &recorder{}
	bus.SubscribeAll(rec.record)

	factory := rendertest.NewFactory(time.Millisecond)
	factory.Default = rendertest.Hang

	cache := rendercache.New(rendercache.Config{Fs: afero.NewMemMapFs(), Root: "/cache", Category: "keyrings"})
	coord := capture.New(capture.Config{Cache: cache, Renderers: factory, Bus: bus},
		capture.WithPollInterval(2*time.Millisecond),
		capture.WithRenderTimeout(10*time.Second),
	)
	defer coord.Close()

	m, err := catalog.Parse([]byte(manifest))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range m.Entities() {
		coord.RequestCapture(e)
	}

	signals := lifecycle.NewSignalSource(bus, nil)
	signals.Deliver(lifecycle.BackgroundSignal)
	coord.Wait()

	if got := coord.LastCancelled(); len(got) != 2 || got[0] != "fox" || got[1] != "owl" {
		t.Errorf("LastCancelled() = %v, want [fox owl]", got)
	}
	if n := rec.count(event.TypeCaptureCancelled); n != 2 {
		t.Errorf("cancelled events = %d, want 2", n)
	}
	if n := rec.count(event.TypeCaptureFailed); n != 0 {
		t.Errorf("cancellation counted as %d failures", n)
	}
	factory.AssertAllClosed(t)

	signals.Deliver(lifecycle.ForegroundSignal)
	if got := coord.LastCancelled(); len(got) != 0 {
		t.Errorf("LastCancelled() after foreground = %v, want empty", got)
	}
	if len(coord.Active()) != 0 {
		t.Errorf("Active() = %v, want none", coord.Active())
	}
}
