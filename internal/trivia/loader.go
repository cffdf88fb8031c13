package trivia

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog holds the playable regions.
type Catalog struct {
	mu      sync.RWMutex
	regions map[string]Region
	order   []string
}

// NewCatalog loads a region catalog from a YAML file. An empty path
// falls back to the built-in catalog.
func NewCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing region catalog: %w", err)
	}

	c := newCatalog(file.Regions)
	if len(c.order) == 0 {
		return nil, fmt.Errorf("region catalog %s has no usable regions", path)
	}

	slog.Info("region catalog loaded", "path", path, "regions", len(c.order))
	return c, nil
}

// DefaultCatalog returns the built-in region set used when no catalog
// file is configured.
func DefaultCatalog() *Catalog {
	return newCatalog([]Region{
		{ID: "fr", Name: "France", Continent: "Europe"},
		{ID: "de", Name: "Germany", Continent: "Europe", Aliases: []string{"Deutschland"}},
		{ID: "es", Name: "Spain", Continent: "Europe", Aliases: []string{"España"}},
		{ID: "it", Name: "Italy", Continent: "Europe", Aliases: []string{"Italia"}},
		{ID: "jp", Name: "Japan", Continent: "Asia", Aliases: []string{"Nippon"}},
		{ID: "my", Name: "Malaysia", Continent: "Asia"},
		{ID: "in", Name: "India", Continent: "Asia"},
		{ID: "br", Name: "Brazil", Continent: "South America", Aliases: []string{"Brasil"}},
		{ID: "ar", Name: "Argentina", Continent: "South America"},
		{ID: "eg", Name: "Egypt", Continent: "Africa"},
		{ID: "ng", Name: "Nigeria", Continent: "Africa"},
		{ID: "us", Name: "United States", Continent: "North America", Aliases: []string{"USA", "United States of America"}},
		{ID: "ca", Name: "Canada", Continent: "North America"},
		{ID: "au", Name: "Australia", Continent: "Oceania"},
	})
}

func newCatalog(regions []Region) *Catalog {
	c := &Catalog{regions: make(map[string]Region)}
	for _, r := range regions {
		if r.ID == "" || r.Name == "" {
			slog.Warn("skipping region without id or name", "id", r.ID, "name", r.Name)
			continue
		}
		if _, dup := c.regions[r.ID]; dup {
			continue
		}
		c.regions[r.ID] = r
		c.order = append(c.order, r.ID)
	}
	return c
}

// Get returns a region by id.
func (c *Catalog) Get(id string) (Region, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.regions[id]
	return r, ok
}

// All returns the regions in catalog order.
func (c *Catalog) All() []Region {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Region, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.regions[id])
	}
	return out
}

// Len returns the number of regions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
