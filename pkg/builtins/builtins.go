// Package builtins is the catalogue of filters and tests every template
// environment provides.
package builtins

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

//go:embed filters.yaml
var catalogueYAML []byte

type Entry struct {
	Name string `yaml:"name"`
	Doc  string `yaml:"doc"`
}

type Catalogue struct {
	Filters []Entry `yaml:"filters"`
	Tests   []Entry `yaml:"tests"`

	filters map[string]Entry
	tests   map[string]Entry
}

var (
	loaded     *Catalogue
	loadedOnce sync.Once
	loadedErr  error
)

// Load parses the embedded catalogue once.
func Load() (*Catalogue, error) {
	loadedOnce.Do(func() {
		loaded, loadedErr = Parse(catalogueYAML)
	})
	return loaded, loadedErr
}

// Default is Load for callers that treat a broken catalogue as a programming error.
func Default() *Catalogue {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Errorf("parsing builtin catalogue: %w", err)
	}
	sort.Slice(c.Filters, func(i, j int) bool { return c.Filters[i].Name < c.Filters[j].Name })
	sort.Slice(c.Tests, func(i, j int) bool { return c.Tests[i].Name < c.Tests[j].Name })

	c.filters = make(map[string]Entry, len(c.Filters))
	for _, f := range c.Filters {
		c.filters[f.Name] = f
	}
	c.tests = make(map[string]Entry, len(c.Tests))
	for _, t := range c.Tests {
		c.tests[t.Name] = t
	}
	return &c, nil
}

func (c *Catalogue) Filter(name string) (Entry, bool) {
	e, ok := c.filters[name]
	return e, ok
}

func (c *Catalogue) Test(name string) (Entry, bool) {
	e, ok := c.tests[name]
	return e, ok
}

// FiltersWithPrefix returns the filters whose names start with prefix, sorted by name.
func (c *Catalogue) FiltersWithPrefix(prefix string) []Entry {
	var out []Entry
	for _, f := range c.Filters {
		if strings.HasPrefix(f.Name, prefix) {
			out = append(out, f)
		}
	}
	return out
}

// Markdown renders an entry for hover.
func (e Entry) Markdown() string {
	return "**" + e.Name + "**\n\n" + e.Doc
}
