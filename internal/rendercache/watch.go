package rendercache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/thumbcache/internal/event"
)

// Watcher evicts in-memory entries when cache files change on disk, whether
// written or removed by this Cache or by another process. It requires the Cache to
// be backed by the OS filesystem.
type Watcher struct {
	cache   *Cache
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Watch starts watching the category directory. The watcher stops when ctx
// is done or Close is called.
func (c *Cache) Watch(ctx context.Context) (*Watcher, error) {
	if err := c.fs.MkdirAll(c.dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(c.dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", c.dir, err)
	}

	w := &Watcher{
		cache:   c,
		watcher: fw,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop(ctx)
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	<-w.done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.once.Do(func() { _ = w.watcher.Close() })
			return
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.handleRemoval(ev.Name)
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				// Atomic writes land as a Create on the target name.
				w.handleWrite(ev.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.cache.logger.Warn("cache watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handleRemoval(path string) {
	id, variant, ok := parseFileName(filepath.Base(path))
	if !ok {
		return
	}
	c := w.cache
	c.evict(id, variant)
	c.logger.WithEntity(id).Info("cache entry removed", "variant", string(variant), "path", path)
	if c.bus != nil {
		c.bus.Publish(event.NewCacheInvalidatedEvent(c.category, id, string(variant), path))
	}
}

// handleWrite drops the in-memory copy so the next Load reads the file. Our
// own saves land here too and only cost one disk read.
func (w *Watcher) handleWrite(path string) {
	id, variant, ok := parseFileName(filepath.Base(path))
	if !ok {
		return
	}
	w.cache.evict(id, variant)
	w.cache.logger.WithEntity(id).Debug("cache entry rewritten", "variant", string(variant), "path", path)
}
