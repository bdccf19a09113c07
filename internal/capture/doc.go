// Package capture coordinates asynchronous offscreen renders into the render
// cache.
//
// A Coordinator guarantees at most one in-flight render per entity, caps
// failed attempts per entity, and cancels every in-flight render when the
// process moves to the background. Requests never block on rendering: a
// request either short-circuits (valid cache hit, active task, exhausted
// entity) or spawns a task goroutine.
//
// Each task opens a renderer session, polls its completion signal until a
// ceiling, waits a short stabilization delay, captures PNG bytes, validates
// them and writes the render cache. Session teardown and registry cleanup run
// on every exit path. Cancellation is never counted as a failure.
//
// Outcomes are observable only through cache state, failure counts, logs and
// events on the bus:
//
//	capture.started    task began
//	capture.succeeded  bytes cached
//	capture.failed     attempt counted against the entity
//	capture.cancelled  task stopped by cancellation
//	capture.batch      a RetryFailedCaches batch started
package capture
