package rendercache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/errors"
)

// MetadataRecord is one widget-visible entry in the index.
type MetadataRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
}

// IndexPath returns the absolute path of the metadata index.
func (c *Cache) IndexPath() string {
	return filepath.Join(c.dir, indexFileName)
}

// SaveIndex replaces the metadata index with records.
func (c *Cache) SaveIndex(records []MetadataRecord) error {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	return c.saveIndexLocked(records)
}

func (c *Cache) saveIndexLocked(records []MetadataRecord) error {
	if records == nil {
		records = []MetadataRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.NewCacheError("index", c.IndexPath(), err)
	}
	return writeAtomic(c.fs, c.IndexPath(), data)
}

// LoadIndex returns the metadata index. A missing or unparsable index yields
// an empty list.
func (c *Cache) LoadIndex() []MetadataRecord {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	return c.loadIndexLocked()
}

func (c *Cache) loadIndexLocked() []MetadataRecord {
	path := c.IndexPath()
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read index", "error", errors.NewCacheError("index", path, err).Error())
		}
		return []MetadataRecord{}
	}

	var records []MetadataRecord
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Warn("ignoring unparsable index", "path", path, "error", err.Error())
		return []MetadataRecord{}
	}
	if records == nil {
		records = []MetadataRecord{}
	}
	return records
}

// Sync caches data as the Thumbnail for id, upserts its index record and
// notifies the refresher. The index is not touched if the byte write fails.
func (c *Cache) Sync(id, displayName string, data []byte) {
	log := c.logger.WithEntity(id)
	if err := c.save(data, id, Thumbnail); err != nil {
		log.Error("sync skipped index update after failed write", "error", err.Error())
		return
	}

	record := MetadataRecord{
		ID:           id,
		Name:         displayName,
		RelativePath: c.RelativePath(id, Thumbnail),
	}

	c.indexMu.Lock()
	records := c.loadIndexLocked()
	replaced := false
	for i := range records {
		if records[i].ID == id {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}
	err := c.saveIndexLocked(records)
	c.indexMu.Unlock()

	if err != nil {
		log.Error("failed to write index", "error", err.Error())
		return
	}
	log.Debug("synced entity to index", "records", len(records))
	c.refresh()
}

// Remove deletes every cached variant of id and drops its index record.
func (c *Cache) Remove(id string) {
	c.DeleteAll(id)
	if _, err := c.dropRecord(id); err != nil {
		c.logger.WithEntity(id).Error("failed to write index", "error", err.Error())
		return
	}
	c.refresh()
}

// Discard deletes the cached bytes for (id, variant). Discarding a Thumbnail
// also drops the index record of id, so the index never points at a missing
// file. The refresher is notified only when a record was dropped.
func (c *Cache) Discard(id string, variant Variant) {
	c.Delete(id, variant)
	if variant != Thumbnail {
		return
	}

	dropped, err := c.dropRecord(id)
	if err != nil {
		c.logger.WithEntity(id).Error("failed to write index", "error", err.Error())
		return
	}
	if dropped {
		c.refresh()
	}
}

// dropRecord removes the index record of id, reporting whether one existed.
func (c *Cache) dropRecord(id string) (bool, error) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	records := c.loadIndexLocked()
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return false, nil
	}
	return true, c.saveIndexLocked(kept)
}

func (c *Cache) refresh() {
	if c.refresher != nil {
		c.refresher.Refresh(c.widgetKind)
	}
}
