// Package event provides a pub-sub event bus for decoupled communication
// between thumbcache components.
//
// The capture coordinator, render cache, widget notifier and lifecycle source
// never call each other directly for notifications: they publish events on a
// shared [Bus] and subscribe to the ones they care about. This keeps the
// lifecycle coupling of the coordinator testable without a real OS runtime.
//
// # Event Types
//
// Lifecycle:
//   - [LifecycleEvent]: "lifecycle.background" / "lifecycle.foreground"
//
// Capture:
//   - [CaptureEvent]: "capture.started", "capture.succeeded", "capture.failed", "capture.cancelled"
//   - [BatchEvent]: "capture.batch", one per retry batch
//
// Cache and widget:
//   - [CacheInvalidatedEvent]: "cache.invalidated", a cache file was removed externally
//   - [WidgetRefreshEvent]: "widget.refresh", the metadata index changed
//
// # Thread Safety
//
// The [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine and a panicking handler does not prevent delivery to
// the others.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	id := bus.Subscribe(event.TypeWidgetRefresh, func(e event.Event) {
//	    refresh := e.(event.WidgetRefreshEvent)
//	    reloadSurface(refresh.Kind)
//	})
//	defer bus.Unsubscribe(id)
package event
