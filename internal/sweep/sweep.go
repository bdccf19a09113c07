// Package sweep periodically retries failed renders on a cron schedule.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/Iron-Ham/thumbcache/internal/capture"
	"github.com/Iron-Ham/thumbcache/internal/errors"
	"github.com/Iron-Ham/thumbcache/internal/logging"
)

// Job is one sweep run.
type Job func(ctx context.Context) error

// Source supplies the entities a sweep considers.
type Source func() ([]capture.Entity, error)

// Retrier re-renders entities missing a valid cache.
type Retrier interface {
	RetryFailedCaches(ctx context.Context, entities []capture.Entity) (capture.RetryReport, error)
}

// RetryJob builds a Job that loads entities from source and retries them.
func RetryJob(source Source, r Retrier, logger *logging.Logger) Job {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return func(ctx context.Context) error {
		entities, err := source()
		if err != nil {
			return fmt.Errorf("load entities: %w", err)
		}
		report, err := r.RetryFailedCaches(ctx, entities)
		logger.Info("sweep finished",
			"entities", len(entities),
			"candidates", report.Candidates,
			"skipped", report.Skipped,
			"batches", report.Batches,
			"started", report.Started,
		)
		return err
	}
}

// Scheduler runs a Job on a cron schedule. Runs never overlap: a tick that
// fires while a run is in progress is skipped.
type Scheduler struct {
	cron   *cron.Cron
	job    Job
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	runs    atomic.Int64
	mu      sync.Mutex
	lastErr error
}

// New creates a Scheduler that runs job on spec, a standard five-field cron
// expression or a descriptor such as "@every 10m".
func New(spec string, job Job, logger *logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		job:    job,
		logger: logger.With("component", "sweep"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.cron = cron.New(cron.WithLogger(cronLogger{s.logger}))
	if _, err := s.cron.AddFunc(spec, func() { _ = s.RunNow(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sweep scheduler started", "next_run", s.cron.Entries()[0].Next)
}

// Stop halts scheduling, cancels a run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// ErrAlreadyRunning is returned by RunNow when a run is in progress.
var ErrAlreadyRunning = errors.New("sweep already running")

// RunNow runs the job synchronously unless a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("skipping sweep, previous run still in progress")
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.runs.Add(1)
	err := s.job(ctx)
	if err != nil {
		s.logger.Warn("sweep failed", "error", err.Error())
	}

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Runs returns how many runs have started.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// LastError returns the error of the most recent run.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct{ l *logging.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"error", err.Error()}, keysAndValues...)...)
}
