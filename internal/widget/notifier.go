// Package widget notifies the out-of-process widget surface that the
// metadata index changed.
package widget

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/logging"
)

// Notifier publishes widget.refresh events and optionally touches a file whose
// mtime out-of-process readers can poll. It implements rendercache.Refresher.
type Notifier struct {
	bus       *event.Bus
	logger    *logging.Logger
	fs        afero.Fs
	touchFile string
	now       func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithTouchFile writes a marker to path on fs after every refresh.
func WithTouchFile(fs afero.Fs, path string) Option {
	return func(n *Notifier) {
		n.fs = fs
		n.touchFile = path
	}
}

// WithLogger sets the logger for touch-file failures.
func WithLogger(l *logging.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// NewNotifier creates a Notifier publishing to bus. bus may be nil when only
// the touch file is wanted.
func NewNotifier(bus *event.Bus, opts ...Option) *Notifier {
	n := &Notifier{
		bus:    bus,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Refresh asks every widget surface of kind to reload.
func (n *Notifier) Refresh(kind string) {
	if n.bus != nil {
		n.bus.Publish(event.NewWidgetRefreshEvent(kind))
	}
	if n.touchFile == "" {
		return
	}
	if err := n.touch(kind); err != nil {
		n.logger.Warn("failed to touch widget file", "path", n.touchFile, "error", err.Error())
	}
}

func (n *Notifier) touch(kind string) error {
	if err := n.fs.MkdirAll(filepath.Dir(n.touchFile), 0755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s %s\n", n.now().UTC().Format(time.RFC3339Nano), kind)
	return afero.WriteFile(n.fs, n.touchFile, []byte(line), 0644)
}
