package rendercache

import (
	"fmt"
	"strings"
)

// Variant selects which rendering of an entity is cached.
type Variant string

const (
	// Thumbnail is the standard rendering, mirrored into the index.
	Thumbnail Variant = "thumbnail"
	// Gift is the gift presentation rendering.
	Gift Variant = "gift"
)

// Variants lists every known variant.
func Variants() []Variant {
	return []Variant{Thumbnail, Gift}
}

// Suffix returns the filename suffix for the variant.
func (v Variant) Suffix() string {
	if v == Gift {
		return "_gift"
	}
	return ""
}

func (v Variant) String() string { return string(v) }

// ParseVariant converts a string to a Variant. Empty means Thumbnail.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", Thumbnail:
		return Thumbnail, nil
	case Gift:
		return Gift, nil
	default:
		return "", fmt.Errorf("unknown variant %q (want %q or %q)", s, Thumbnail, Gift)
	}
}

// ValidateID reports whether id can name cache files. Ids must be non-empty,
// free of path separators and must not end in a variant suffix, which would
// collide with another entity's variant file.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("missing id")
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("id %q must not contain path separators", id)
	case strings.HasSuffix(id, Gift.Suffix()):
		return fmt.Errorf("id %q must not end in %q", id, Gift.Suffix())
	}
	return nil
}
