// Package catalog loads the caller-supplied list of renderable entities from
// a YAML manifest.
//
// A manifest looks like:
//
//	defaults:
//	  width: 300
//	  height: 400
//	  zoom: 1
//	entities:
//	  - id: k1
//	    name: Brass Fox
//	    style: round
//	    chain_style: ball
//	    body_image: art/fox.png
//	    chain_length: 6
//	  - id: k2
//	    name: Gifted Owl
//	    variant: gift
//	    body_image: https://example.com/owl.png
//	    withheld: true
//
// Relative body image paths are resolved against the manifest directory.
package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/thumbcache/internal/capture"
	"github.com/Iron-Ham/thumbcache/internal/rendercache"
	"github.com/Iron-Ham/thumbcache/internal/renderer"
)

// Entry is one manifest entity.
type Entry struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name,omitempty"`
	Variant     string          `yaml:"variant,omitempty"`
	Params      renderer.Params `yaml:",inline"`
	Withheld    bool            `yaml:"withheld,omitempty"`
	Transferred bool            `yaml:"transferred,omitempty"`
}

// Manifest is the parsed manifest file.
type Manifest struct {
	// Defaults fills render parameters an entry leaves unset.
	Defaults renderer.Params `yaml:"defaults,omitempty"`
	Entries  []Entry         `yaml:"entities"`

	// dir resolves relative body image paths. Empty leaves them unchanged.
	dir string
}

// Parse decodes a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and decodes the manifest at path on fs.
func Load(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]bool, len(m.Entries))
	for i, e := range m.Entries {
		if err := rendercache.ValidateID(e.ID); err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
		if seen[e.ID] {
			return fmt.Errorf("entity %q: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if _, err := rendercache.ParseVariant(e.Variant); err != nil {
			return fmt.Errorf("entity %q: %w", e.ID, err)
		}
	}
	return nil
}

// Entities converts every entry to a capture.Entity, applying defaults.
func (m *Manifest) Entities() []capture.Entity {
	out := make([]capture.Entity, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, m.entity(e))
	}
	return out
}

// Filter returns the entities whose id matches the glob pattern.
// An empty pattern matches everything.
func (m *Manifest) Filter(pattern string) ([]capture.Entity, error) {
	if pattern == "" {
		return m.Entities(), nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid id pattern %q: %w", pattern, err)
	}

	var out []capture.Entity
	for _, e := range m.Entries {
		if g.Match(e.ID) {
			out = append(out, m.entity(e))
		}
	}
	return out, nil
}

// Find returns the entity with id.
func (m *Manifest) Find(id string) (capture.Entity, bool) {
	for _, e := range m.Entries {
		if e.ID == id {
			return m.entity(e), true
		}
	}
	return capture.Entity{}, false
}

func (m *Manifest) entity(e Entry) capture.Entity {
	variant, _ := rendercache.ParseVariant(e.Variant) // checked by validate
	name := e.Name
	if name == "" {
		name = e.ID
	}
	return capture.Entity{
		ID:          e.ID,
		DisplayName: name,
		Variant:     variant,
		Params:      m.resolve(WithDefaults(e.Params, m.Defaults)),
		Withheld:    e.Withheld,
		Transferred: e.Transferred,
	}
}

func (m *Manifest) resolve(p renderer.Params) renderer.Params {
	if p.BodyImage == "" || m.dir == "" || isURL(p.BodyImage) || filepath.IsAbs(p.BodyImage) {
		return p
	}
	p.BodyImage = filepath.Join(m.dir, p.BodyImage)
	return p
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// WithDefaults fills every zero field of p from defaults.
func WithDefaults(p, defaults renderer.Params) renderer.Params {
	if p.Style == "" {
		p.Style = defaults.Style
	}
	if p.ChainStyle == "" {
		p.ChainStyle = defaults.ChainStyle
	}
	if p.BodyImage == "" {
		p.BodyImage = defaults.BodyImage
	}
	if p.Width == 0 {
		p.Width = defaults.Width
	}
	if p.Height == 0 {
		p.Height = defaults.Height
	}
	if p.Zoom == 0 {
		p.Zoom = defaults.Zoom
	}
	if p.HookOffset == 0 {
		p.HookOffset = defaults.HookOffset
	}
	if p.ChainLength == 0 {
		p.ChainLength = defaults.ChainLength
	}
	return p
}
