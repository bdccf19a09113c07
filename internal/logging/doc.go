// Package logging provides structured logging for thumbcache.
//
// This package wraps Go's log/slog to emit JSON-formatted logs with persistent
// context attributes. Render and cache operations are asynchronous and their
// failures never surface to callers, so these logs are the primary way to see
// why a thumbnail is missing.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context attributes (entity ID, variant, cache category)
//   - Size-based log rotation
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers created
// via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{Dir: cacheRoot, Level: "INFO"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	entityLogger := logger.WithEntity("ring-42").WithVariant("thumbnail")
//	entityLogger.Info("capture succeeded", "bytes", 18234)
//
// Use [NopLogger] in tests or when logging is disabled.
package logging
