// Package errors provides centralized error definitions and error handling utilities
// for thumbcache. It defines the error kinds produced while rendering and caching
// thumbnails, structured error types carrying entity and path context, and
// classification helpers used by the capture coordinator.
//
// # Error Kinds
//
// Sentinel errors identify what went wrong:
//   - ErrRenderTimeout: the renderer never signaled completion in time
//   - ErrRendererFallback: the renderer degraded to a placeholder image
//   - ErrInvalidImage: captured bytes were empty, undecodable or blank
//   - ErrIOFailure: a disk read or write in the render cache failed
//   - ErrCancelled: the capture was cancelled (not a failure)
//
// Structured errors wrap a sentinel with context:
//   - CaptureError: a failed capture for an entity/variant/attempt
//   - CacheError: a failed cache operation on a path
//
// # Usage
//
//	err := errors.NewCaptureError("render did not complete", errors.ErrRenderTimeout).
//	    WithEntity("ring-42").
//	    WithAttempt(2)
//
//	if errors.Is(err, errors.ErrRenderTimeout) { ... }
//	if errors.CountsAsFailure(err) { ... }
//
// None of these errors cross the public API of the capture coordinator; they
// are logged and reduced to cache and failure-counter state.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrRenderTimeout indicates the renderer's completion signal was not
	// received within the render timeout.
	ErrRenderTimeout = New("render timed out")
	// ErrRendererFallback indicates the renderer fell back to a placeholder.
	ErrRendererFallback = New("renderer fell back to placeholder")
	// ErrInvalidImage indicates captured bytes were empty, undecodable, or blank.
	ErrInvalidImage = New("invalid image")
	// ErrIOFailure indicates a disk read or write failed in the render cache.
	ErrIOFailure = New("cache i/o failure")
	// ErrCancelled indicates a capture was cancelled. It is not a failure.
	ErrCancelled = New("capture cancelled")
)

// -----------------------------------------------------------------------------
// CaptureError
// -----------------------------------------------------------------------------

// CaptureError describes a failed or aborted capture for one entity.
type CaptureError struct {
	Message  string
	EntityID string
	Variant  string
	Attempt  int
	Cause    error
}

// NewCaptureError creates a CaptureError wrapping cause.
func NewCaptureError(message string, cause error) *CaptureError {
	return &CaptureError{Message: message, Cause: cause}
}

// WithEntity sets the entity ID.
func (e *CaptureError) WithEntity(id string) *CaptureError {
	e.EntityID = id
	return e
}

// WithVariant sets the cache variant name.
func (e *CaptureError) WithVariant(variant string) *CaptureError {
	e.Variant = variant
	return e
}

// WithAttempt sets the attempt number (1-based).
func (e *CaptureError) WithAttempt(n int) *CaptureError {
	e.Attempt = n
	return e
}

func (e *CaptureError) Error() string {
	var sb strings.Builder
	sb.WriteString("capture")
	if e.EntityID != "" {
		sb.WriteString(" [entity=")
		sb.WriteString(e.EntityID)
		if e.Variant != "" {
			sb.WriteString(" variant=")
			sb.WriteString(e.Variant)
		}
		if e.Attempt > 0 {
			fmt.Fprintf(&sb, " attempt=%d", e.Attempt)
		}
		sb.WriteString("]")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *CaptureError) Unwrap() error { return e.Cause }

// -----------------------------------------------------------------------------
// CacheError
// -----------------------------------------------------------------------------

// CacheError describes a failed render cache operation. It always matches
// ErrIOFailure via errors.Is.
type CacheError struct {
	Op    string // "save", "load", "delete", "index"
	Path  string
	Cause error
}

// NewCacheError creates a CacheError for op on path.
func NewCacheError(op, path string, cause error) *CacheError {
	return &CacheError{Op: op, Path: path, Cause: cause}
}

func (e *CacheError) Error() string {
	msg := fmt.Sprintf("cache %s %s", e.Op, e.Path)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CacheError) Unwrap() error { return e.Cause }

// Is reports ErrIOFailure as a match so callers can classify without
// unwrapping to the underlying filesystem error.
func (e *CacheError) Is(target error) bool {
	return target == ErrIOFailure
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsCancellation reports whether err represents cancellation rather than
// failure. Context cancellation is treated the same as ErrCancelled; a context
// deadline is not, since the render timeout is enforced separately.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrCancelled) || Is(err, context.Canceled)
}

// CountsAsFailure reports whether err should increment an entity's failure
// counter. Cancellation never counts.
func CountsAsFailure(err error) bool {
	if err == nil || IsCancellation(err) {
		return false
	}
	return Is(err, ErrRenderTimeout) || Is(err, ErrRendererFallback) || Is(err, ErrInvalidImage) ||
		isRendererError(err)
}

// isRendererError reports errors that did not come from a known kind. Errors
// raised by the renderer itself (open or capture failures) count as failures;
// cache I/O errors do not, since the render succeeded.
func isRendererError(err error) bool {
	return !Is(err, ErrIOFailure)
}

// Kind returns a short label for err suitable for log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsCancellation(err):
		return "cancelled"
	case Is(err, ErrRenderTimeout):
		return "render_timeout"
	case Is(err, ErrRendererFallback):
		return "renderer_fallback"
	case Is(err, ErrInvalidImage):
		return "invalid_image"
	case Is(err, ErrIOFailure):
		return "io_failure"
	default:
		return "renderer_error"
	}
}
