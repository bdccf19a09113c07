package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sunshineplan/imgconv"

	"github.com/Iron-Ham/thumbcache/internal/errors"
	"github.com/Iron-Ham/thumbcache/internal/event"
)

// run executes one registered task and records its outcome.
func (c *Coordinator) run(t *task, entity Entity) {
	defer c.wg.Done()
	defer close(t.done)
	defer c.unregister(t)
	defer t.cancel()

	variant := entity.CacheVariant()
	log := c.logger.WithEntity(entity.ID).WithVariant(string(variant))

	c.publish(event.NewCaptureStartedEvent(entity.ID, string(variant)))
	log.Debug("capture started")
	start := time.Now()

	err := c.captureAndCache(t.ctx, entity)
	switch {
	case err == nil:
		c.failures.Reset(entity.ID)
		log.Info("capture succeeded", "duration_ms", time.Since(start).Milliseconds())

	case errors.IsCancellation(err):
		c.publish(event.NewCaptureCancelledEvent(entity.ID, string(variant)))
		log.Debug("capture cancelled")

	case errors.CountsAsFailure(err):
		attempts := c.failures.RecordFailure(entity.ID, err.Error())
		c.publish(event.NewCaptureFailedEvent(entity.ID, string(variant), attempts, errors.Kind(err)))
		log.Warn("capture failed",
			"attempt", attempts,
			"max_retries", c.maxRetries,
			"kind", errors.Kind(err),
			"error", err.Error(),
		)

	default:
		log.Error("capture could not be stored", "error", err.Error())
	}
}

// captureAndCache drives one renderer session to cached bytes. The session is
// closed on every path.
func (c *Coordinator) captureAndCache(ctx context.Context, entity Entity) error {
	variant := entity.CacheVariant()
	params := entity.Params

	if err := params.Validate(); err != nil {
		return c.captureError("invalid render parameters", err, entity)
	}

	session, err := c.renderers.Open(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return errors.ErrCancelled
		}
		return c.captureError("open renderer", err, entity)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.WithEntity(entity.ID).Warn("failed to close render session", "error", cerr.Error())
		}
	}()

	if err := c.awaitCompletion(ctx, session.Done()); err != nil {
		return err
	}
	if session.IsFallback() {
		return c.captureError("renderer fell back to placeholder", errors.ErrRendererFallback, entity)
	}

	if err := sleepCtx(ctx, c.stabilizationDelay); err != nil {
		return err
	}

	data, err := session.CaptureToPNG(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errors.ErrCancelled
		}
		return c.captureError("capture frame", err, entity)
	}

	img, err := c.validator.Check(data)
	if err != nil {
		return c.captureError("validate capture", err, entity)
	}
	data, err = normalize(data, img, params.Width, params.Height)
	if err != nil {
		return c.captureError("normalize capture", err, entity)
	}

	if ctx.Err() != nil {
		return errors.ErrCancelled
	}

	if entity.widgetEligible() {
		c.cache.Sync(entity.ID, entity.DisplayName, data)
	} else {
		c.cache.Save(data, entity.ID, variant)
	}
	if !c.cache.Exists(entity.ID, variant) {
		return errors.NewCacheError("save", c.cache.Path(entity.ID, variant), errors.ErrIOFailure)
	}

	c.publish(event.NewCaptureSucceededEvent(entity.ID, string(variant), len(data)))
	return nil
}

// awaitCompletion polls done every poll interval until it is closed, the
// render timeout elapses, or ctx is cancelled.
func (c *Coordinator) awaitCompletion(ctx context.Context, done <-chan struct{}) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.renderTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.ErrCancelled
		case <-deadline.C:
			// A render that completed in the last poll window still counts.
			if completed(done) {
				return completion(ctx)
			}
			return fmt.Errorf("no completion after %s: %w", c.renderTimeout, errors.ErrRenderTimeout)
		case <-ticker.C:
			if completed(done) {
				return completion(ctx)
			}
		}
	}
}

// completion resolves a completed render. Cancellation may race with
// completion; cancellation wins.
func completion(ctx context.Context) error {
	if ctx.Err() != nil {
		return errors.ErrCancelled
	}
	return nil
}

func completed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (c *Coordinator) captureError(msg string, err error, entity Entity) error {
	return errors.NewCaptureError(msg, err).
		WithEntity(entity.ID).
		WithVariant(string(entity.CacheVariant())).
		WithAttempt(c.failures.Attempts(entity.ID) + 1)
}

// sleepCtx waits d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return errors.ErrCancelled
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.ErrCancelled
	case <-timer.C:
		return nil
	}
}

// normalize downsizes img to fit width x height and re-encodes it as PNG.
// Images already within bounds are returned unchanged.
func normalize(data []byte, img image.Image, width, height int) ([]byte, error) {
	b := img.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() <= width && b.Dy() <= height) {
		return data, nil
	}

	resized := imgconv.Resize(img, &imgconv.ResizeOption{Width: width, Height: height})
	var buf bytes.Buffer
	if err := imgconv.Write(&buf, resized, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
