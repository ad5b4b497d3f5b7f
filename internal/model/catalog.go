package model

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog holds the model descriptors known to a process, keyed by
// "namespace/PluralName".
type Catalog struct {
	models map[string]Descriptor
}

type catalogFile struct {
	Models []Descriptor `yaml:"models"`
}

// NewCatalog builds a catalog from descriptors. Duplicate keys are rejected.
func NewCatalog(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{models: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Namespace == "" || d.PluralName == "" {
			return nil, fmt.Errorf("NewCatalog: model requires namespace and pluralName")
		}
		if _, exists := c.models[d.Key()]; exists {
			return nil, fmt.Errorf("NewCatalog: duplicate model %s", d.Key())
		}
		c.models[d.Key()] = d
	}
	return c, nil
}

// ParseCatalog parses a YAML (or JSON) catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ParseCatalog: %w", err)
	}
	return NewCatalog(f.Models...)
}

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}
	return ParseCatalog(data)
}

// Get returns the model for namespace and plural name.
func (c *Catalog) Get(namespace, pluralName string) (Descriptor, error) {
	d, ok := c.models[namespace+"/"+pluralName]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s/%s", ErrUnknownModel, namespace, pluralName)
	}
	return d, nil
}

// All returns every model sorted by key.
func (c *Catalog) All() []Descriptor {
	keys := make([]string, 0, len(c.models))
	for k := range c.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Descriptor, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.models[k])
	}
	return out
}
