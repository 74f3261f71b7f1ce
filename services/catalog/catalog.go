// Package catalog holds the list of models the gateway advertises.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultCatalog []byte

// Model describes one advertised model
type Model struct {
	ID          string `yaml:"id" json:"id"`
	Provider    string `yaml:"provider" json:"provider"`
	Status      string `yaml:"status" json:"status"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Featured    bool   `yaml:"featured,omitempty" json:"-"`
}

type document struct {
	Models []Model `yaml:"models"`
}

// Catalog is an immutable model list
type Catalog struct {
	models []Model
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid embedded models.yaml: %v", err))
	}
	return c
}

// Parse reads a catalog from YAML
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(doc.Models))
	for i, m := range doc.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate catalog entry %q", m.ID)
		}
		seen[m.ID] = true
	}

	return &Catalog{models: doc.Models}, nil
}

// List returns every model in catalog order
func (c *Catalog) List() []Model {
	return append([]Model(nil), c.models...)
}

// FeaturedIDs returns the ids of featured models, reported by the health endpoint
func (c *Catalog) FeaturedIDs() []string {
	ids := make([]string, 0, len(c.models))
	for _, m := range c.models {
		if m.Featured {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Get returns the model with the given id
func (c *Catalog) Get(id string) (Model, bool) {
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}
