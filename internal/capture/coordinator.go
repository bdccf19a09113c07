package capture

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/logging"
	"github.com/Iron-Ham/thumbcache/internal/rendercache"
	"github.com/Iron-Ham/thumbcache/internal/renderer"
	"github.com/Iron-Ham/thumbcache/internal/validator"
)

// Defaults for the render-wait protocol and batch retry.
const (
	DefaultMaxRetries         = 3
	DefaultPollInterval       = 150 * time.Millisecond
	DefaultRenderTimeout      = 5 * time.Second
	DefaultStabilizationDelay = 150 * time.Millisecond
	DefaultBatchSize          = 5
	DefaultBatchPause         = 500 * time.Millisecond
)

// Config holds the required collaborators of a Coordinator.
type Config struct {
	Cache     *rendercache.Cache
	Renderers renderer.Factory
	// Bus receives capture events and delivers lifecycle events. May be nil.
	Bus    *event.Bus
	Logger *logging.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxRetries sets the failed attempt cap per entity.
func WithMaxRetries(n int) Option {
	return func(c *Coordinator) { c.maxRetries = n }
}

// WithPollInterval sets how often the completion signal is checked.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.pollInterval = d }
}

// WithRenderTimeout sets the completion ceiling.
func WithRenderTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.renderTimeout = d }
}

// WithStabilizationDelay sets the wait between completion and capture.
func WithStabilizationDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.stabilizationDelay = d }
}

// WithBatchSize sets how many entities RetryFailedCaches renders at once.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) { c.batchSize = n }
}

// WithBatchPause sets the pause between retry batches.
func WithBatchPause(d time.Duration) Option {
	return func(c *Coordinator) { c.batchPause = d }
}

// WithValidator replaces the blank-image thresholds.
func WithValidator(v validator.Validator) Option {
	return func(c *Coordinator) { c.validator = v }
}

// Phase is the per-entity capture state.
type Phase int

const (
	// Idle means no task is running and attempts remain.
	Idle Phase = iota
	// Capturing means a task is in flight.
	Capturing
	// Exhausted means the entity reached the attempt cap and is skipped.
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Request reports what RequestCapture did.
type Request int

const (
	// Started means a new task was spawned.
	Started Request = iota
	// Cached means a valid cached image already exists.
	Cached
	// AlreadyActive means a task for the entity is in flight.
	AlreadyActive
	// SkippedExhausted means the entity reached the attempt cap.
	SkippedExhausted
	// Rejected means the coordinator is closed.
	Rejected
)

func (r Request) String() string {
	switch r {
	case Started:
		return "started"
	case Cached:
		return "cached"
	case AlreadyActive:
		return "already_active"
	case SkippedExhausted:
		return "exhausted"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// task is the cancel handle of one in-flight render.
type task struct {
	entityID string
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// Coordinator schedules renders into the render cache.
type Coordinator struct {
	cache     *rendercache.Cache
	renderers renderer.Factory
	bus       *event.Bus
	logger    *logging.Logger
	validator validator.Validator

	maxRetries         int
	pollInterval       time.Duration
	renderTimeout      time.Duration
	stabilizationDelay time.Duration
	batchSize          int
	batchPause         time.Duration

	failures *FailureCounter

	mu            sync.Mutex
	active        map[string]*task
	lastCancelled []string
	closed        bool
	subscriptions []string

	wg sync.WaitGroup
}

// New creates a Coordinator and subscribes it to lifecycle events on the bus.
func New(cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:              cfg.Cache,
		renderers:          cfg.Renderers,
		bus:                cfg.Bus,
		logger:             cfg.Logger,
		validator:          validator.Default(),
		maxRetries:         DefaultMaxRetries,
		pollInterval:       DefaultPollInterval,
		renderTimeout:      DefaultRenderTimeout,
		stabilizationDelay: DefaultStabilizationDelay,
		batchSize:          DefaultBatchSize,
		batchPause:         DefaultBatchPause,
		active:             make(map[string]*task),
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batchSize < 1 {
		c.batchSize = 1
	}
	c.failures = NewFailureCounter(c.maxRetries)

	if c.bus != nil {
		c.subscriptions = append(c.subscriptions,
			c.bus.Subscribe(event.TypeBackground, func(event.Event) { c.onBackground() }),
			c.bus.Subscribe(event.TypeForeground, func(event.Event) { c.onForeground() }),
		)
	}
	return c
}

// RequestCapture renders entity into the cache unless a valid cached image
// exists, a task for the entity is already running, or the entity has
// exhausted its attempts. It never blocks on rendering.
func (c *Coordinator) RequestCapture(entity Entity) Request {
	if c.hasValidCache(entity) {
		return Cached
	}

	t, result := c.register(context.Background(), entity)
	if result != Started {
		return result
	}
	go c.run(t, entity)
	return Started
}

// hasValidCache reports whether a usable image is cached for entity,
// discarding a cached image that fails validation along with its index record.
func (c *Coordinator) hasValidCache(entity Entity) bool {
	variant := entity.CacheVariant()
	data, ok := c.cache.Load(entity.ID, variant)
	if !ok {
		return false
	}
	if _, err := c.validator.Check(data); err != nil {
		c.logger.WithEntity(entity.ID).Info("discarding invalid cached image",
			"variant", string(variant),
			"error", err.Error(),
		)
		c.cache.Discard(entity.ID, variant)
		return false
	}
	return true
}

// register performs the dedupe and attempt-cap checks and records a new task
// in one critical section. When a task for the entity is already running it
// is returned with AlreadyActive so callers may wait on it.
func (c *Coordinator) register(parent context.Context, entity Entity) (*task, Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, Rejected
	}
	if existing, ok := c.active[entity.ID]; ok {
		return existing, AlreadyActive
	}
	if c.failures.Exhausted(entity.ID) {
		return nil, SkippedExhausted
	}

	ctx, cancel := context.WithCancel(parent)
	t := &task{
		entityID: entity.ID,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.active[entity.ID] = t
	c.wg.Add(1)
	return t, Started
}

// unregister removes t from the registry unless it was already replaced.
func (c *Coordinator) unregister(t *task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[t.entityID] == t {
		delete(c.active, t.entityID)
	}
}

// CancelAllTasks cancels every in-flight task, clears the registry and
// returns the cancelled entity ids in sorted order.
func (c *Coordinator) CancelAllTasks() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.active))
	for id, t := range c.active {
		t.cancel()
		ids = append(ids, id)
	}
	c.active = make(map[string]*task)
	c.mu.Unlock()

	sort.Strings(ids)
	return ids
}

func (c *Coordinator) onBackground() {
	ids := c.CancelAllTasks()

	c.mu.Lock()
	c.lastCancelled = ids
	c.mu.Unlock()

	c.logger.Info("entering background, cancelled in-flight renders",
		"count", len(ids),
		"entity_ids", ids,
	)
}

// onForeground reports the renders interrupted by the last background
// transition. They are not resubmitted; callers re-request as entities become
// visible again.
func (c *Coordinator) onForeground() {
	c.mu.Lock()
	ids := c.lastCancelled
	c.lastCancelled = nil
	c.mu.Unlock()

	c.logger.Info("returned to foreground",
		"interrupted_count", len(ids),
		"entity_ids", ids,
	)
}

// LastCancelled returns the ids cancelled by the most recent background
// transition that has not yet been followed by a foreground transition.
func (c *Coordinator) LastCancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lastCancelled...)
}

// State returns the capture phase of id.
func (c *Coordinator) State(id string) Phase {
	c.mu.Lock()
	_, running := c.active[id]
	c.mu.Unlock()

	switch {
	case running:
		return Capturing
	case c.failures.Exhausted(id):
		return Exhausted
	default:
		return Idle
	}
}

// Failures returns the failed attempt count of id.
func (c *Coordinator) Failures(id string) int {
	return c.failures.Attempts(id)
}

// FailureStates returns every tracked failure state.
func (c *Coordinator) FailureStates() []FailureState {
	return c.failures.Snapshot()
}

// ResetFailures clears the attempt count of id so it can be retried.
func (c *Coordinator) ResetFailures(id string) {
	c.failures.Reset(id)
}

// Active returns the sorted ids of in-flight tasks.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Wait blocks until every spawned task has exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close rejects new requests, unsubscribes from the bus, cancels every
// in-flight task and waits for them to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.closed = true
	subs := c.subscriptions
	c.subscriptions = nil
	c.mu.Unlock()

	if c.bus != nil {
		for _, id := range subs {
			c.bus.Unsubscribe(id)
		}
	}
	c.CancelAllTasks()
	c.wg.Wait()
}

func (c *Coordinator) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
