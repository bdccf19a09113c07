package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "capture.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// categoryRegex restricts the category to a single safe path segment
var categoryRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCache()...)
	errors = append(errors, c.validateCapture()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateValidator()...)
	errors = append(errors, c.validateRenderer()...)
	errors = append(errors, c.validateSweep()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateCache() []ValidationError {
	var errors []ValidationError

	if !categoryRegex.MatchString(c.Cache.Category) {
		errors = append(errors, ValidationError{
			Field:   "cache.category",
			Value:   c.Cache.Category,
			Message: "must be a single path segment of letters, digits, '.', '_' or '-'",
		})
	}
	if c.Cache.HotEntries < 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.hot_entries",
			Value:   c.Cache.HotEntries,
			Message: "must be non-negative",
		})
	}
	if strings.TrimSpace(c.Cache.WidgetKind) == "" {
		errors = append(errors, ValidationError{
			Field:   "cache.widget_kind",
			Value:   c.Cache.WidgetKind,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateCapture() []ValidationError {
	var errors []ValidationError

	if c.Capture.PollIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "capture.poll_interval_ms",
			Value:   c.Capture.PollIntervalMs,
			Message: "must be positive",
		})
	}
	if c.Capture.RenderTimeoutMs < c.Capture.PollIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "capture.render_timeout_ms",
			Value:   c.Capture.RenderTimeoutMs,
			Message: "must be at least capture.poll_interval_ms",
		})
	}
	if c.Capture.StabilizationDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "capture.stabilization_delay_ms",
			Value:   c.Capture.StabilizationDelayMs,
			Message: "must be non-negative",
		})
	}

	const maxRetriesLimit = 100
	if c.Capture.MaxRetries < 1 || c.Capture.MaxRetries > maxRetriesLimit {
		errors = append(errors, ValidationError{
			Field:   "capture.max_retries",
			Value:   c.Capture.MaxRetries,
			Message: fmt.Sprintf("must be between 1 and %d", maxRetriesLimit),
		})
	}

	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	const maxBatchSize = 50
	if c.Retry.BatchSize < 1 || c.Retry.BatchSize > maxBatchSize {
		errors = append(errors, ValidationError{
			Field:   "retry.batch_size",
			Value:   c.Retry.BatchSize,
			Message: fmt.Sprintf("must be between 1 and %d", maxBatchSize),
		})
	}
	if c.Retry.BatchPauseMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.batch_pause_ms",
			Value:   c.Retry.BatchPauseMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateValidator() []ValidationError {
	var errors []ValidationError
	v := c.Validator

	if v.MinWidth < 1 {
		errors = append(errors, ValidationError{Field: "validator.min_width", Value: v.MinWidth, Message: "must be positive"})
	}
	if v.MinHeight < 1 {
		errors = append(errors, ValidationError{Field: "validator.min_height", Value: v.MinHeight, Message: "must be positive"})
	}
	if v.MaxSamples < 1 {
		errors = append(errors, ValidationError{Field: "validator.max_samples", Value: v.MaxSamples, Message: "must be positive"})
	}
	if v.ChannelThreshold < 0 || v.ChannelThreshold > 255 {
		errors = append(errors, ValidationError{
			Field:   "validator.channel_threshold",
			Value:   v.ChannelThreshold,
			Message: "must be between 0 and 255",
		})
	}
	if v.MinValidRatio < 0 || v.MinValidRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "validator.min_valid_ratio",
			Value:   v.MinValidRatio,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

func (c *Config) validateRenderer() []ValidationError {
	var errors []ValidationError
	r := c.Renderer

	// A default size below the validator minimum would make every render blank.
	if r.Width < c.Validator.MinWidth {
		errors = append(errors, ValidationError{
			Field:   "renderer.width",
			Value:   r.Width,
			Message: fmt.Sprintf("must be at least validator.min_width (%d)", c.Validator.MinWidth),
		})
	}
	if r.Height < c.Validator.MinHeight {
		errors = append(errors, ValidationError{
			Field:   "renderer.height",
			Value:   r.Height,
			Message: fmt.Sprintf("must be at least validator.min_height (%d)", c.Validator.MinHeight),
		})
	}
	if r.Zoom <= 0 {
		errors = append(errors, ValidationError{Field: "renderer.zoom", Value: r.Zoom, Message: "must be positive"})
	}
	if r.FrameIntervalMs <= 0 {
		errors = append(errors, ValidationError{Field: "renderer.frame_interval_ms", Value: r.FrameIntervalMs, Message: "must be positive"})
	}
	if r.FetchTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{Field: "renderer.fetch_timeout_seconds", Value: r.FetchTimeoutSeconds, Message: "must be positive"})
	}

	return errors
}

func (c *Config) validateSweep() []ValidationError {
	var errors []ValidationError

	if !c.Sweep.Enabled {
		return errors
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Sweep.Schedule); err != nil {
		errors = append(errors, ValidationError{
			Field:   "sweep.schedule",
			Value:   c.Sweep.Schedule,
			Message: fmt.Sprintf("invalid cron spec: %v", err),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{Field: "logging.max_size_mb", Value: c.Logging.MaxSizeMB, Message: "must be non-negative"})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{Field: "logging.max_backups", Value: c.Logging.MaxBackups, Message: "must be non-negative"})
	}

	return errors
}
