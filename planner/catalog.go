// Package planner compiles natural-language questions into validated
// QueryPlans against a whitelist catalog of sources, columns, measures, and
// SafeSQL templates (C3).
package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceDef describes one queryable source and the columns/measures it
// exposes. Nothing outside this catalog can ever appear in a QueryPlan.
type SourceDef struct {
	Name       string   `yaml:"name"`
	Table      string   `yaml:"table"`
	Dimensions []string `yaml:"dimensions"`
	Measures   []string `yaml:"measures"`
}

// Catalog is the whitelist the planner and executor validate every plan
// against.
type Catalog struct {
	Sources   []SourceDef `yaml:"sources"`
	Templates []string    `yaml:"templates"`

	bySource map[string]SourceDef
}

// LoadCatalog reads a YAML catalog document from path.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("planner: read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("planner: parse catalog %s: %w", path, err)
	}
	c.index()
	return &c, nil
}

func (c *Catalog) index() {
	c.bySource = make(map[string]SourceDef, len(c.Sources))
	for _, s := range c.Sources {
		c.bySource[s.Name] = s
	}
}

// Source looks up a source definition by name.
func (c *Catalog) Source(name string) (SourceDef, bool) {
	if c.bySource == nil {
		for _, s := range c.Sources {
			if s.Name == name {
				return s, true
			}
		}
		return SourceDef{}, false
	}
	s, ok := c.bySource[name]
	return s, ok
}

// HasDimension reports whether column is a known dimension of source.
func (s SourceDef) HasDimension(column string) bool {
	for _, d := range s.Dimensions {
		if d == column {
			return true
		}
	}
	return false
}

// HasMeasure reports whether measure is a known measure of source.
func (s SourceDef) HasMeasure(measure string) bool {
	for _, m := range s.Measures {
		if m == measure {
			return true
		}
	}
	return false
}

// HasTemplate reports whether name is an enumerated SafeSQL template. A
// catalog that lists no templates uses DefaultTemplates.
func (c *Catalog) HasTemplate(name string) bool {
	templates := c.Templates
	if len(templates) == 0 {
		templates = DefaultTemplates
	}
	for _, t := range templates {
		if t == name {
			return true
		}
	}
	return false
}

// DefaultTemplates is the exact enumeration of SafeSQL templates the
// executor knows how to render (spec.md §4.4).
var DefaultTemplates = []string{
	"describe_source",
	"sample_top",
	"top_n",
	"time_series",
	"breakdown",
	"comparison",
}
