package evaluator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogEntry names a dataset or local model known to the evaluation host.
type CatalogEntry struct {
	Name        string `yaml:"name"`
	Path        string `yaml:"path,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Catalog lists the datasets and local models that validation accepts.
// An empty list accepts any non-empty name.
type Catalog struct {
	Datasets []CatalogEntry `yaml:"datasets"`
	Models   []CatalogEntry `yaml:"models"`
}

// LoadCatalog reads a YAML catalog from path. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Catalog{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes a YAML catalog and rejects entries without a name.
func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	for i := range c.Datasets {
		c.Datasets[i].Name = strings.TrimSpace(c.Datasets[i].Name)
		if c.Datasets[i].Name == "" {
			return nil, fmt.Errorf("catalog dataset %d has no name", i)
		}
	}
	for i := range c.Models {
		c.Models[i].Name = strings.TrimSpace(c.Models[i].Name)
		if c.Models[i].Name == "" {
			return nil, fmt.Errorf("catalog model %d has no name", i)
		}
	}
	return &c, nil
}

// Dataset looks up a dataset by name or path.
func (c *Catalog) Dataset(name string) (CatalogEntry, bool) {
	return lookup(c.Datasets, name)
}

// Model looks up a local model by name or path.
func (c *Catalog) Model(name string) (CatalogEntry, bool) {
	return lookup(c.Models, name)
}

func lookup(entries []CatalogEntry, name string) (CatalogEntry, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CatalogEntry{}, false
	}
	if len(entries) == 0 {
		return CatalogEntry{Name: name}, true
	}
	for _, e := range entries {
		if e.Name == name || (e.Path != "" && e.Path == name) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
