package capture

import (
	"github.com/Iron-Ham/thumbcache/internal/rendercache"
	"github.com/Iron-Ham/thumbcache/internal/renderer"
)

// Entity is a renderable item as supplied by the caller.
type Entity struct {
	ID          string
	DisplayName string
	Variant     rendercache.Variant
	Params      renderer.Params

	// Withheld and Transferred exclude the entity from the widget index.
	// Its bytes are still cached.
	Withheld    bool
	Transferred bool
}

// CacheVariant returns the entity variant, defaulting to Thumbnail.
func (e Entity) CacheVariant() rendercache.Variant {
	if e.Variant == "" {
		return rendercache.Thumbnail
	}
	return e.Variant
}

// widgetEligible reports whether a successful render is mirrored into the
// metadata index.
func (e Entity) widgetEligible() bool {
	return e.CacheVariant() == rendercache.Thumbnail && !e.Withheld && !e.Transferred
}
