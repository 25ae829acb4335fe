package styles

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"imageforge/internal/models"
)

//go:embed styles.json
var stylesData []byte

// UnknownStyleError reports a style name outside the static catalog.
type UnknownStyleError struct {
	Name string
}

func (e *UnknownStyleError) Error() string {
	return fmt.Sprintf("unknown style %q", e.Name)
}

// Catalog is the process-wide read-only set of style presets.
type Catalog struct {
	defaultStyle string
	order        []string
	presets      map[string]models.StylePreset
}

type rawCatalog struct {
	Default string               `json:"default"`
	Presets []models.StylePreset `json:"presets"`
}

// Load parses the embedded preset catalog. The catalog is immutable
// after this point.
func Load() (*Catalog, error) {
	var parsed rawCatalog
	if err := json.Unmarshal(stylesData, &parsed); err != nil {
		return nil, fmt.Errorf("parse styles asset: %w", err)
	}
	if len(parsed.Presets) == 0 {
		return nil, fmt.Errorf("styles asset contains no presets")
	}

	c := &Catalog{
		defaultStyle: parsed.Default,
		presets:      make(map[string]models.StylePreset, len(parsed.Presets)),
	}
	for _, p := range parsed.Presets {
		if p.Name == "" || p.PromptSuffix == "" {
			return nil, fmt.Errorf("style preset %q is missing a name or prompt suffix", p.Name)
		}
		if _, exists := c.presets[p.Name]; exists {
			return nil, fmt.Errorf("duplicate style preset %q", p.Name)
		}
		c.order = append(c.order, p.Name)
		c.presets[p.Name] = p
	}

	if _, ok := c.presets[c.defaultStyle]; !ok {
		return nil, fmt.Errorf("default style %q is not in the catalog", c.defaultStyle)
	}

	return c, nil
}

// Resolve returns the preset for name, or an UnknownStyleError.
func (c *Catalog) Resolve(name string) (models.StylePreset, error) {
	p, ok := c.presets[name]
	if !ok {
		return models.StylePreset{}, &UnknownStyleError{Name: name}
	}
	return p, nil
}

// Names returns the preset names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Default returns the name of the preset selected when the UI opens.
func (c *Catalog) Default() string {
	return c.defaultStyle
}

// Presets returns all presets in catalog order.
func (c *Catalog) Presets() []models.StylePreset {
	out := make([]models.StylePreset, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.presets[name])
	}
	return out
}
