package rendercache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gg/cache"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/errors"
	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/logging"
)

const (
	fileExt       = ".png"
	indexFileName = "index.json"
	tmpExt        = ".tmp"
)

// DefaultHotEntries is the per-shard capacity of the in-memory layer.
const DefaultHotEntries = 64

// Refresher is notified after every index mutation so the widget surface of
// the given kind can reload.
type Refresher interface {
	Refresh(kind string)
}

// Config holds the collaborators of a Cache.
type Config struct {
	// Fs is the filesystem holding the cache. Nil means the OS filesystem.
	Fs afero.Fs
	// Root is the cache root directory.
	Root string
	// Category is the per-entity-kind subdirectory, e.g. "keyrings".
	Category string
	// Refresher is notified after index changes. May be nil.
	Refresher Refresher
	// Logger receives I/O failures. Nil means NopLogger.
	Logger *logging.Logger
}

// Option configures optional Cache behavior.
type Option func(*Cache)

// WithHotEntries sets the per-shard capacity of the in-memory layer.
// Zero disables it.
func WithHotEntries(n int) Option {
	return func(c *Cache) { c.hotEntries = n }
}

// WithBus sets the bus that receives cache.invalidated events from Watch.
func WithBus(bus *event.Bus) Option {
	return func(c *Cache) { c.bus = bus }
}

// WithWidgetKind sets the kind passed to Refresher.Refresh. Defaults to the
// category.
func WithWidgetKind(kind string) Option {
	return func(c *Cache) { c.widgetKind = kind }
}

// Entry describes one cached file.
type Entry struct {
	EntityID string
	Variant  Variant
	Size     int64
	ModTime  time.Time
}

// HotStats reports in-memory layer activity.
type HotStats struct {
	Enabled   bool
	Len       int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is the disk-backed render cache. It is safe for concurrent use.
type Cache struct {
	fs         afero.Fs
	root       string
	category   string
	dir        string
	refresher  Refresher
	logger     *logging.Logger
	bus        *event.Bus
	widgetKind string

	hotEntries int
	hot        *cache.ShardedCache[string, []byte]

	indexMu sync.Mutex
}

// New creates a Cache. The category directory is created lazily on first write.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		fs:         cfg.Fs,
		root:       cfg.Root,
		category:   cfg.Category,
		dir:        filepath.Join(cfg.Root, cfg.Category),
		refresher:  cfg.Refresher,
		logger:     cfg.Logger,
		widgetKind: cfg.Category,
		hotEntries: DefaultHotEntries,
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithCategory(c.category)
	if c.hotEntries > 0 {
		c.hot = cache.NewSharded[string, []byte](c.hotEntries, cache.StringHasher)
	}
	return c
}

// Dir returns the category directory.
func (c *Cache) Dir() string { return c.dir }

// Category returns the cache category.
func (c *Cache) Category() string { return c.category }

// Path returns the absolute path of the cache file for (id, variant).
func (c *Cache) Path(id string, variant Variant) string {
	return filepath.Join(c.dir, fileName(id, variant))
}

// RelativePath returns the cache file path relative to the root, as stored in
// the metadata index.
func (c *Cache) RelativePath(id string, variant Variant) string {
	return filepath.ToSlash(filepath.Join(c.category, fileName(id, variant)))
}

func fileName(id string, variant Variant) string {
	return id + variant.Suffix() + fileExt
}

func hotKey(id string, variant Variant) string {
	return id + "\x00" + string(variant)
}

// Save writes data for (id, variant), overwriting any previous bytes.
// Failures are logged, not returned.
func (c *Cache) Save(data []byte, id string, variant Variant) {
	if err := c.save(data, id, variant); err != nil {
		c.logger.WithEntity(id).Error("failed to save cache entry",
			"variant", string(variant),
			"error", err.Error(),
		)
	}
}

func (c *Cache) save(data []byte, id string, variant Variant) error {
	if err := writeAtomic(c.fs, c.Path(id, variant), data); err != nil {
		return err
	}
	if c.hot != nil {
		c.hot.Set(hotKey(id, variant), data)
	}
	return nil
}

// Load returns the cached bytes for (id, variant). A missing or unreadable
// file reports false. The returned slice must not be modified.
func (c *Cache) Load(id string, variant Variant) ([]byte, bool) {
	key := hotKey(id, variant)
	if c.hot != nil {
		if data, ok := c.hot.Get(key); ok {
			return data, true
		}
	}

	path := c.Path(id, variant)
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.WithEntity(id).Warn("failed to read cache entry",
				"variant", string(variant),
				"error", errors.NewCacheError("load", path, err).Error(),
			)
		}
		return nil, false
	}

	if c.hot != nil {
		c.hot.Set(key, data)
	}
	return data, true
}

// Exists reports whether a cache file exists for (id, variant).
func (c *Cache) Exists(id string, variant Variant) bool {
	if c.hot != nil {
		if _, ok := c.hot.Get(hotKey(id, variant)); ok {
			return true
		}
	}
	info, err := c.fs.Stat(c.Path(id, variant))
	return err == nil && !info.IsDir()
}

// Delete removes the cache file for (id, variant). Absent files are ignored.
func (c *Cache) Delete(id string, variant Variant) {
	c.evict(id, variant)

	path := c.Path(id, variant)
	if err := c.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.WithEntity(id).Error("failed to delete cache entry",
			"variant", string(variant),
			"error", errors.NewCacheError("delete", path, err).Error(),
		)
	}
}

// DeleteAll removes every variant cached for id.
func (c *Cache) DeleteAll(id string) {
	for _, v := range Variants() {
		c.Delete(id, v)
	}
}

func (c *Cache) evict(id string, variant Variant) {
	if c.hot != nil {
		c.hot.Delete(hotKey(id, variant))
	}
}

// Entries lists the cached files in the category directory, sorted by entity
// id then variant.
func (c *Cache) Entries() ([]Entry, error) {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewCacheError("list", c.dir, err)
	}

	var entries []Entry
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		id, variant, ok := parseFileName(info.Name())
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			EntityID: id,
			Variant:  variant,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EntityID != entries[j].EntityID {
			return entries[i].EntityID < entries[j].EntityID
		}
		return entries[i].Variant > entries[j].Variant
	})
	return entries, nil
}

// parseFileName maps a cache file name back to (id, variant).
func parseFileName(name string) (string, Variant, bool) {
	base, ok := strings.CutSuffix(name, fileExt)
	if !ok || base == "" {
		return "", "", false
	}
	if id, ok := strings.CutSuffix(base, Gift.Suffix()); ok && id != "" {
		return id, Gift, true
	}
	return base, Thumbnail, true
}

// Stats reports in-memory layer activity.
func (c *Cache) Stats() HotStats {
	if c.hot == nil {
		return HotStats{}
	}
	s := c.hot.Stats()
	return HotStats{
		Enabled:   true,
		Len:       s.Len,
		Hits:      uint64(s.Hits),
		Misses:    uint64(s.Misses),
		Evictions: uint64(s.Evictions),
	}
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it into place.
func writeAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.NewCacheError("mkdir", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+"-*"+tmpExt)
	if err != nil {
		return errors.NewCacheError("write", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return errors.NewCacheError("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return errors.NewCacheError("write", path, err)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return errors.NewCacheError("rename", path, err)
	}
	return nil
}
