package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "capture.succeeded").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeBackground       = "lifecycle.background"
	TypeForeground       = "lifecycle.foreground"
	TypeCaptureStarted   = "capture.started"
	TypeCaptureSucceeded = "capture.succeeded"
	TypeCaptureFailed    = "capture.failed"
	TypeCaptureCancelled = "capture.cancelled"
	TypeCaptureBatch     = "capture.batch"
	TypeCacheInvalidated = "cache.invalidated"
	TypeWidgetRefresh    = "widget.refresh"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// LifecycleEvent reports a process lifecycle transition.
type LifecycleEvent struct {
	baseEvent
	Source string // What observed the transition (e.g. "signal", "test")
}

// NewBackgroundEvent creates a LifecycleEvent for entering the background.
func NewBackgroundEvent(source string) LifecycleEvent {
	return LifecycleEvent{baseEvent: newBaseEvent(TypeBackground), Source: source}
}

// NewForegroundEvent creates a LifecycleEvent for returning to the foreground.
func NewForegroundEvent(source string) LifecycleEvent {
	return LifecycleEvent{baseEvent: newBaseEvent(TypeForeground), Source: source}
}

// -----------------------------------------------------------------------------
// Capture Events
// -----------------------------------------------------------------------------

// CaptureEvent reports progress of one render task.
type CaptureEvent struct {
	baseEvent
	EntityID string
	Variant  string
	Attempts int    // Failure count after this event
	Reason   string // Error kind for failures, empty otherwise
	Bytes    int    // Size of the cached image on success
}

// NewCaptureStartedEvent creates a "capture.started" event.
func NewCaptureStartedEvent(entityID, variant string) CaptureEvent {
	return CaptureEvent{baseEvent: newBaseEvent(TypeCaptureStarted), EntityID: entityID, Variant: variant}
}

// NewCaptureSucceededEvent creates a "capture.succeeded" event.
func NewCaptureSucceededEvent(entityID, variant string, size int) CaptureEvent {
	return CaptureEvent{baseEvent: newBaseEvent(TypeCaptureSucceeded), EntityID: entityID, Variant: variant, Bytes: size}
}

// NewCaptureFailedEvent creates a "capture.failed" event.
func NewCaptureFailedEvent(entityID, variant string, attempts int, reason string) CaptureEvent {
	return CaptureEvent{
		baseEvent: newBaseEvent(TypeCaptureFailed),
		EntityID:  entityID,
		Variant:   variant,
		Attempts:  attempts,
		Reason:    reason,
	}
}

// NewCaptureCancelledEvent creates a "capture.cancelled" event.
func NewCaptureCancelledEvent(entityID, variant string) CaptureEvent {
	return CaptureEvent{baseEvent: newBaseEvent(TypeCaptureCancelled), EntityID: entityID, Variant: variant}
}

// BatchEvent is emitted when a retry batch starts.
type BatchEvent struct {
	baseEvent
	Index     int      // 0-based batch number
	Total     int      // Number of batches in this retry run
	EntityIDs []string // Entities in this batch
}

// NewBatchEvent creates a "capture.batch" event.
func NewBatchEvent(index, total int, ids []string) BatchEvent {
	return BatchEvent{baseEvent: newBaseEvent(TypeCaptureBatch), Index: index, Total: total, EntityIDs: ids}
}

// -----------------------------------------------------------------------------
// Cache and Widget Events
// -----------------------------------------------------------------------------

// CacheInvalidatedEvent is emitted when a cache file disappears underneath
// the render cache, e.g. removed by another process.
type CacheInvalidatedEvent struct {
	baseEvent
	Category string
	EntityID string
	Variant  string
	Path     string
}

// NewCacheInvalidatedEvent creates a "cache.invalidated" event.
func NewCacheInvalidatedEvent(category, entityID, variant, path string) CacheInvalidatedEvent {
	return CacheInvalidatedEvent{
		baseEvent: newBaseEvent(TypeCacheInvalidated),
		Category:  category,
		EntityID:  entityID,
		Variant:   variant,
		Path:      path,
	}
}

// WidgetRefreshEvent asks the external visual surface of Kind to reload.
type WidgetRefreshEvent struct {
	baseEvent
	Kind string
}

// NewWidgetRefreshEvent creates a "widget.refresh" event.
func NewWidgetRefreshEvent(kind string) WidgetRefreshEvent {
	return WidgetRefreshEvent{baseEvent: newBaseEvent(TypeWidgetRefresh), Kind: kind}
}
