// Package lifecycle translates process lifecycle transitions into events on
// the event bus.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/logging"
)

// State is a process lifecycle state.
type State int

const (
	// Foreground means the host is active and visible.
	Foreground State = iota
	// Background means the host left the foreground; in-flight renders must stop.
	Background
)

func (s State) String() string {
	switch s {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Publish emits the event for state on bus.
func Publish(bus *event.Bus, state State, source string) {
	switch state {
	case Background:
		bus.Publish(event.NewBackgroundEvent(source))
	case Foreground:
		bus.Publish(event.NewForegroundEvent(source))
	}
}

// Signal assignments used by SignalSource.
var (
	BackgroundSignal os.Signal = syscall.SIGUSR1
	ForegroundSignal os.Signal = syscall.SIGUSR2
)

// SignalSource maps OS signals onto lifecycle events so an external host can
// drive transitions of a long-running process.
type SignalSource struct {
	bus    *event.Bus
	logger *logging.Logger

	// notify and stop are signal.Notify and signal.Stop; tests replace them.
	notify func(chan<- os.Signal, ...os.Signal)
	stop   func(chan<- os.Signal)
}

// NewSignalSource creates a SignalSource publishing to bus.
func NewSignalSource(bus *event.Bus, logger *logging.Logger) *SignalSource {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &SignalSource{
		bus:    bus,
		logger: logger,
		notify: signal.Notify,
		stop:   signal.Stop,
	}
}

// Run publishes a lifecycle event for every BackgroundSignal and
// ForegroundSignal received until ctx is done.
func (s *SignalSource) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 4)
	s.notify(sigCh, BackgroundSignal, ForegroundSignal)
	defer s.stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			s.Deliver(sig)
		}
	}
}

// Deliver publishes the lifecycle event mapped to sig. Unmapped signals are
// ignored.
func (s *SignalSource) Deliver(sig os.Signal) {
	var state State
	switch sig {
	case BackgroundSignal:
		state = Background
	case ForegroundSignal:
		state = Foreground
	default:
		return
	}
	s.logger.Info("lifecycle transition", "state", state.String(), "signal", sig.String())
	Publish(s.bus, state, "signal")
}
