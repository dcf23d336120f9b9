// Package content loads the studio's static catalog: contact details,
// business hours and the portfolio.
package content

import (
	"fmt"
	"os"
	"strings"

	"tattoostudio/internal/models"

	"gopkg.in/yaml.v2"
)

// Studio is the public information about the studio.
type Studio struct {
	Name    string                 `yaml:"name" json:"name"`
	About   string                 `yaml:"about" json:"about"`
	Contact models.ContactInfo     `yaml:"contact" json:"contact"`
	Hours   []models.BusinessHours `yaml:"hours" json:"hours"`
}

// Catalog is the parsed content file.
type Catalog struct {
	Studio    Studio              `yaml:"studio" json:"studio"`
	Portfolio []models.TattooWork `yaml:"portfolio" json:"portfolio"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Portfolio))
	for i, w := range c.Portfolio {
		if strings.TrimSpace(w.ID) == "" {
			return fmt.Errorf("portfolio[%d]: id is required", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("portfolio[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = true
		if !w.Style.Valid() {
			return fmt.Errorf("portfolio[%d]: unknown style %q", i, w.Style)
		}
	}
	return nil
}

// Works returns the portfolio filtered by style; "" or "all" returns every work.
func (c *Catalog) Works(style string) ([]models.TattooWork, error) {
	if style == "" || style == "all" {
		return append([]models.TattooWork(nil), c.Portfolio...), nil
	}
	s := models.TattooStyle(style)
	if !s.Valid() {
		return nil, fmt.Errorf("unknown style %q", style)
	}
	out := make([]models.TattooWork, 0, len(c.Portfolio))
	for _, w := range c.Portfolio {
		if w.Style == s {
			out = append(out, w)
		}
	}
	return out, nil
}
