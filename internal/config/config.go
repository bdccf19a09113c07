package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete thumbcache configuration
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Validator ValidatorConfig `mapstructure:"validator" yaml:"validator"`
	Renderer  RendererConfig  `mapstructure:"renderer" yaml:"renderer"`
	Sweep     SweepConfig     `mapstructure:"sweep" yaml:"sweep"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// CacheConfig controls where rendered bytes and the metadata index live
type CacheConfig struct {
	// Root is the cache root directory. Empty means the user cache dir.
	// Supports ~ for home directory expansion.
	Root string `mapstructure:"root" yaml:"root"`
	// Category is the per-entity-kind subdirectory (default: "keyrings")
	Category string `mapstructure:"category" yaml:"category"`
	// HotEntries is the per-shard capacity of the in-memory byte cache (0 disables it)
	HotEntries int `mapstructure:"hot_entries" yaml:"hot_entries"`
	// Watch enables watching the category directory for external invalidation
	Watch bool `mapstructure:"watch" yaml:"watch"`
	// WidgetKind is the surface kind passed to widget refresh notifications
	WidgetKind string `mapstructure:"widget_kind" yaml:"widget_kind"`
	// WidgetTouchFile, when set, is touched after every index mutation so
	// out-of-process readers can poll its mtime
	WidgetTouchFile string `mapstructure:"widget_touch_file" yaml:"widget_touch_file"`
}

// CaptureConfig controls the render-wait protocol
type CaptureConfig struct {
	// PollIntervalMs is how often the completion signal is checked (default: 150)
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	// RenderTimeoutMs is the completion ceiling (default: 5000)
	RenderTimeoutMs int `mapstructure:"render_timeout_ms" yaml:"render_timeout_ms"`
	// StabilizationDelayMs is the post-completion wait before capture (default: 150)
	StabilizationDelayMs int `mapstructure:"stabilization_delay_ms" yaml:"stabilization_delay_ms"`
	// MaxRetries caps failed attempts per entity (default: 3)
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// RetryConfig controls batch retry of failed caches
type RetryConfig struct {
	// BatchSize is the number of concurrent captures per batch (default: 5)
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// BatchPauseMs is the pause between batches (default: 500)
	BatchPauseMs int `mapstructure:"batch_pause_ms" yaml:"batch_pause_ms"`
}

// ValidatorConfig holds the blank-image heuristic thresholds
type ValidatorConfig struct {
	MinWidth         int     `mapstructure:"min_width" yaml:"min_width"`
	MinHeight        int     `mapstructure:"min_height" yaml:"min_height"`
	MaxSamples       int     `mapstructure:"max_samples" yaml:"max_samples"`
	ChannelThreshold int     `mapstructure:"channel_threshold" yaml:"channel_threshold"`
	MinValidRatio    float64 `mapstructure:"min_valid_ratio" yaml:"min_valid_ratio"`
}

// RendererConfig controls the built-in offscreen renderer
type RendererConfig struct {
	// Width and Height are the default target size in pixels
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
	// Zoom is the default zoom factor
	Zoom float64 `mapstructure:"zoom" yaml:"zoom"`
	// FrameIntervalMs is the physics step of the chain simulation (default: 16)
	FrameIntervalMs int `mapstructure:"frame_interval_ms" yaml:"frame_interval_ms"`
	// FetchTimeoutSeconds bounds body image downloads (default: 10)
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
}

// SweepConfig controls scheduled retry sweeps in serve mode
type SweepConfig struct {
	// Enabled turns on the scheduler (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Schedule is a robfig/cron spec (default: "@every 10m")
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	// Manifest is the entity manifest the sweep loads
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes logs to {cache.root}/thumbcache.log instead of stderr (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Root:       "", // Empty means DefaultCacheRoot()
			Category:   "keyrings",
			HotEntries: 64,
			Watch:      true,
			WidgetKind: "keyring",
		},
		Capture: CaptureConfig{
			PollIntervalMs:       150,
			RenderTimeoutMs:      5000,
			StabilizationDelayMs: 150,
			MaxRetries:           3,
		},
		Retry: RetryConfig{
			BatchSize:    5,
			BatchPauseMs: 500,
		},
		Validator: ValidatorConfig{
			MinWidth:         150,
			MinHeight:        200,
			MaxSamples:       200,
			ChannelThreshold: 10,
			MinValidRatio:    0.05,
		},
		Renderer: RendererConfig{
			Width:               300,
			Height:              400,
			Zoom:                1.0,
			FrameIntervalMs:     16,
			FetchTimeoutSeconds: 10,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: "@every 10m",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// PollInterval returns the completion poll interval as a time.Duration
func (c *CaptureConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RenderTimeout returns the render timeout as a time.Duration
func (c *CaptureConfig) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutMs) * time.Millisecond
}

// StabilizationDelay returns the stabilization delay as a time.Duration
func (c *CaptureConfig) StabilizationDelay() time.Duration {
	return time.Duration(c.StabilizationDelayMs) * time.Millisecond
}

// BatchPause returns the inter-batch pause as a time.Duration
func (c *RetryConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMs) * time.Millisecond
}

// FrameInterval returns the physics step as a time.Duration
func (c *RendererConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// FetchTimeout returns the body image download timeout as a time.Duration
func (c *RendererConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// ResolveRoot returns the resolved cache root.
// Empty uses DefaultCacheRoot; a leading ~ expands to the home directory.
func (c *CacheConfig) ResolveRoot() string {
	if c.Root == "" {
		return DefaultCacheRoot()
	}

	path := c.Root
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// DefaultCacheRoot returns $XDG_CACHE_HOME/thumbcache, falling back to
// the OS user cache directory.
func DefaultCacheRoot() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "thumbcache")
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".thumbcache"
	}
	return filepath.Join(dir, "thumbcache")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Cache defaults
	viper.SetDefault("cache.root", defaults.Cache.Root)
	viper.SetDefault("cache.category", defaults.Cache.Category)
	viper.SetDefault("cache.hot_entries", defaults.Cache.HotEntries)
	viper.SetDefault("cache.watch", defaults.Cache.Watch)
	viper.SetDefault("cache.widget_kind", defaults.Cache.WidgetKind)
	viper.SetDefault("cache.widget_touch_file", defaults.Cache.WidgetTouchFile)

	// Capture defaults
	viper.SetDefault("capture.poll_interval_ms", defaults.Capture.PollIntervalMs)
	viper.SetDefault("capture.render_timeout_ms", defaults.Capture.RenderTimeoutMs)
	viper.SetDefault("capture.stabilization_delay_ms", defaults.Capture.StabilizationDelayMs)
	viper.SetDefault("capture.max_retries", defaults.Capture.MaxRetries)

	// Retry defaults
	viper.SetDefault("retry.batch_size", defaults.Retry.BatchSize)
	viper.SetDefault("retry.batch_pause_ms", defaults.Retry.BatchPauseMs)

	// Validator defaults
	viper.SetDefault("validator.min_width", defaults.Validator.MinWidth)
	viper.SetDefault("validator.min_height", defaults.Validator.MinHeight)
	viper.SetDefault("validator.max_samples", defaults.Validator.MaxSamples)
	viper.SetDefault("validator.channel_threshold", defaults.Validator.ChannelThreshold)
	viper.SetDefault("validator.min_valid_ratio", defaults.Validator.MinValidRatio)

	// Renderer defaults
	viper.SetDefault("renderer.width", defaults.Renderer.Width)
	viper.SetDefault("renderer.height", defaults.Renderer.Height)
	viper.SetDefault("renderer.zoom", defaults.Renderer.Zoom)
	viper.SetDefault("renderer.frame_interval_ms", defaults.Renderer.FrameIntervalMs)
	viper.SetDefault("renderer.fetch_timeout_seconds", defaults.Renderer.FetchTimeoutSeconds)

	// Sweep defaults
	viper.SetDefault("sweep.enabled", defaults.Sweep.Enabled)
	viper.SetDefault("sweep.schedule", defaults.Sweep.Schedule)
	viper.SetDefault("sweep.manifest", defaults.Sweep.Manifest)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "thumbcache")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".thumbcache"
	}
	return filepath.Join(home, ".config", "thumbcache")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
