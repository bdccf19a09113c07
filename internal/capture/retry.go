package capture

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/thumbcache/internal/event"
)

// RetryReport summarizes one RetryFailedCaches run.
type RetryReport struct {
	// Candidates is the number of entities that needed a render.
	Candidates int
	// Skipped counts exhausted entities and entities with a valid cache.
	Skipped int
	// Batches is the number of batches started.
	Batches int
	// Started counts tasks spawned by the run; joined tasks that were
	// already in flight are not included.
	Started int
}

// RetryFailedCaches re-renders every entity that has no cached image or a
// cached image failing validation, skipping exhausted entities. Entities are
// processed in concurrent batches; each batch is joined before the next one
// starts after a pause. Cancelling ctx stops the run at the next pause.
func (c *Coordinator) RetryFailedCaches(ctx context.Context, entities []Entity) (RetryReport, error) {
	var report RetryReport

	var candidates []Entity
	for _, e := range entities {
		if c.failures.Exhausted(e.ID) || c.hasValidCache(e) {
			report.Skipped++
			continue
		}
		candidates = append(candidates, e)
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	batches := chunk(candidates, c.batchSize)
	c.logger.Info("retrying failed caches",
		"candidates", len(candidates),
		"batches", len(batches),
		"batch_size", c.batchSize,
	)

	for i, batch := range batches {
		if i > 0 {
			if err := pause(ctx, c.batchPause); err != nil {
				return report, err
			}
		} else if err := ctx.Err(); err != nil {
			return report, err
		}

		ids := make([]string, len(batch))
		for j, e := range batch {
			ids[j] = e.ID
		}
		c.publish(event.NewBatchEvent(i, len(batches), ids))
		report.Batches++
		report.Started += c.runBatch(ctx, batch)
	}
	return report, nil
}

// runBatch renders batch concurrently and returns when every entity in it has
// settled. Cancelling ctx cancels the batch's own tasks.
func (c *Coordinator) runBatch(ctx context.Context, batch []Entity) int {
	var wg conc.WaitGroup
	started := 0
	for _, e := range batch {
		t, result := c.register(ctx, e)
		switch result {
		case Started:
			started++
			wg.Go(func() { c.run(t, e) })
		case AlreadyActive:
			wg.Go(func() { <-t.done })
		}
	}
	wg.Wait()
	return started
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// chunk splits entities into consecutive slices of at most size elements.
func chunk(entities []Entity, size int) [][]Entity {
	var out [][]Entity
	for start := 0; start < len(entities); start += size {
		end := min(start+size, len(entities))
		out = append(out, entities[start:end])
	}
	return out
}
