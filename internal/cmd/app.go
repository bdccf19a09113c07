package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/capture"
	"github.com/Iron-Ham/thumbcache/internal/catalog"
	"github.com/Iron-Ham/thumbcache/internal/config"
	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/logging"
	"github.com/Iron-Ham/thumbcache/internal/rendercache"
	"github.com/Iron-Ham/thumbcache/internal/renderer"
	"github.com/Iron-Ham/thumbcache/internal/renderer/ggrender"
	"github.com/Iron-Ham/thumbcache/internal/validator"
	"github.com/Iron-Ham/thumbcache/internal/widget"
)

// app is the composition root shared by every command.
type app struct {
	cfg      *config.Config
	fs       afero.Fs
	logger   *logging.Logger
	bus      *event.Bus
	cache    *rendercache.Cache
	notifier *widget.Notifier
	coord    *capture.Coordinator
	check    validator.Validator
}

// appOption overrides a collaborator, mainly for tests.
type appOption func(*appDeps)

type appDeps struct {
	fs        afero.Fs
	logger    *logging.Logger
	renderers renderer.Factory
}

func withFs(fs afero.Fs) appOption {
	return func(d *appDeps) { d.fs = fs }
}

func withLogger(l *logging.Logger) appOption {
	return func(d *appDeps) { d.logger = l }
}

func withRenderers(f renderer.Factory) appOption {
	return func(d *appDeps) { d.renderers = f }
}

// newApp wires the cache, renderer and coordinator from cfg.
func newApp(cfg *config.Config, opts ...appOption) (*app, error) {
	deps := appDeps{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&deps)
	}

	root := cfg.Cache.ResolveRoot()
	if deps.logger == nil {
		deps.logger = createLogger(root, cfg)
	}
	logger := deps.logger

	bus := event.NewBus()
	bus.SetPanicHandler(func(eventType string, recovered any, stack []byte) {
		logger.Error("event handler panicked",
			"event_type", eventType,
			"panic", fmt.Sprint(recovered),
			"stack", string(stack),
		)
	})

	notifierOpts := []widget.Option{widget.WithLogger(logger)}
	if cfg.Cache.WidgetTouchFile != "" {
		notifierOpts = append(notifierOpts, widget.WithTouchFile(deps.fs, cfg.Cache.WidgetTouchFile))
	}
	notifier := widget.NewNotifier(bus, notifierOpts...)

	cache := rendercache.New(rendercache.Config{
		Fs:        deps.fs,
		Root:      root,
		Category:  cfg.Cache.Category,
		Refresher: notifier,
		Logger:    logger.WithCategory(cfg.Cache.Category),
	},
		rendercache.WithHotEntries(cfg.Cache.HotEntries),
		rendercache.WithBus(bus),
		rendercache.WithWidgetKind(cfg.Cache.WidgetKind),
	)

	if deps.renderers == nil {
		deps.renderers = ggrender.NewFactory(
			ggrender.WithFs(deps.fs),
			ggrender.WithFrameInterval(cfg.Renderer.FrameInterval()),
			ggrender.WithFetchTimeout(cfg.Renderer.FetchTimeout()),
			ggrender.WithLogger(logger.With("component", "renderer")),
		)
	}

	check := validator.Validator{
		MinWidth:         cfg.Validator.MinWidth,
		MinHeight:        cfg.Validator.MinHeight,
		MaxSamples:       cfg.Validator.MaxSamples,
		ChannelThreshold: cfg.Validator.ChannelThreshold,
		MinValidRatio:    cfg.Validator.MinValidRatio,
	}
	coord := capture.New(capture.Config{
		Cache:     cache,
		Renderers: deps.renderers,
		Bus:       bus,
		Logger:    logger.With("component", "capture"),
	},
		capture.WithMaxRetries(cfg.Capture.MaxRetries),
		capture.WithPollInterval(cfg.Capture.PollInterval()),
		capture.WithRenderTimeout(cfg.Capture.RenderTimeout()),
		capture.WithStabilizationDelay(cfg.Capture.StabilizationDelay()),
		capture.WithBatchSize(cfg.Retry.BatchSize),
		capture.WithBatchPause(cfg.Retry.BatchPause()),
		capture.WithValidator(check),
	)

	return &app{
		cfg:      cfg,
		fs:       deps.fs,
		logger:   logger,
		bus:      bus,
		cache:    cache,
		notifier: notifier,
		coord:    coord,
		check:    check,
	}, nil
}

// loadManifest reads the entity manifest, filling unset render parameters
// from the renderer config section.
func (a *app) loadManifest(path string) (*catalog.Manifest, error) {
	if path == "" {
		path = a.cfg.Sweep.Manifest
	}
	if path == "" {
		return nil, fmt.Errorf("no manifest given: pass --manifest or set sweep.manifest")
	}
	m, err := catalog.Load(a.fs, path)
	if err != nil {
		return nil, err
	}
	m.Defaults = catalog.WithDefaults(m.Defaults, renderer.Params{
		Width:  a.cfg.Renderer.Width,
		Height: a.cfg.Renderer.Height,
		Zoom:   a.cfg.Renderer.Zoom,
	})
	return m, nil
}

func (a *app) close() {
	a.coord.Close()
	if err := a.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", err)
	}
}

// createLogger creates a file logger under the cache root if logging is
// enabled in config, and a stderr logger otherwise.
// Log creation failure falls back to stderr rather than aborting.
func createLogger(root string, cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NewWithWriter(os.Stderr, "warn")
	}

	logger, err := logging.New(logging.Options{
		Dir:   root,
		Level: cfg.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		return logging.NewWithWriter(os.Stderr, cfg.Logging.Level)
	}
	return logger
}
