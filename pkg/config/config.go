// Package config loads the workspace settings from jinja-lsp.hcl,
// jinja-lsp.yaml and the editor's initialization options.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/jinjals/pkg/backend"
	"github.com/walteh/jinjals/pkg/syntax"
)

// FileNames are looked up in the workspace root, in order.
var FileNames = []string{"jinja-lsp.hcl", "jinja-lsp.yaml", "jinja-lsp.yml"}

// 📝 Config file structure
type Config struct {
	// 📁 Root directory template names are resolved against
	Templates string `json:"templates" yaml:"templates" hcl:"templates,optional"`
	// 📁 Directories holding backend sources
	Backend []string `json:"backend" yaml:"backend" hcl:"backend,optional"`
	// 🔧 Backend language: rust or python
	Lang string `json:"lang" yaml:"lang" hcl:"lang,optional"`
	// 🎯 Object registrations are called on, e.g. jinja.add_global
	Sentinel string `json:"sentinel,omitempty" yaml:"sentinel,omitempty" hcl:"sentinel,optional"`
	// 🎯 Functions whose first string argument names a template
	TemplateCalls []string `json:"template_calls,omitempty" yaml:"template_calls,omitempty" hcl:"template_calls,optional"`
	// 📝 Hover text per dotted name
	Descriptions map[string]string `json:"descriptions,omitempty" yaml:"descriptions,omitempty" hcl:"descriptions,optional"`
}

func Default() *Config {
	return &Config{
		Templates: "templates",
		Backend:   []string{"src"},
		Lang:      string(syntax.BackendRust),
		Sentinel:  backend.DefaultSentinel,
	}
}

func (c *Config) Clone() *Config {
	out := *c
	out.Backend = append([]string(nil), c.Backend...)
	out.TemplateCalls = append([]string(nil), c.TemplateCalls...)
	if c.Descriptions != nil {
		out.Descriptions = make(map[string]string, len(c.Descriptions))
		for k, v := range c.Descriptions {
			out.Descriptions[k] = v
		}
	}
	return &out
}

func (c *Config) BackendLanguage() syntax.BackendLanguage {
	return syntax.BackendLanguage(strings.ToLower(c.Lang))
}

// ExtractorOptions turns the backend settings into extractor options.
func (c *Config) ExtractorOptions() []backend.Option {
	return []backend.Option{backend.WithSentinel(c.Sentinel), backend.WithTemplateCalls(c.TemplateCalls...)}
}

// Description returns the configured hover text for a dotted name.
func (c *Config) Description(path []string) (string, bool) {
	d, ok := c.Descriptions[strings.Join(path, ".")]
	return d, ok
}

// 📝 Load config from file (supports YAML and HCL). root is available to HCL
// expressions as the variable `root`.
func LoadFile(fs afero.Fs, path string, root string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	cfg := Default()

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
		return cfg, nil
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"root": cty.StringVal(root),
		},
	}

	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, cfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	return cfg, nil
}

// Discover loads the first config file found in root, or the defaults. The
// returned path is empty when no file exists.
func Discover(ctx context.Context, fs afero.Fs, root string) (*Config, string, error) {
	for _, name := range FileNames {
		path := filepath.Join(root, name)
		ok, err := afero.Exists(fs, path)
		if err != nil {
			return nil, "", errors.Errorf("checking %s: %w", path, err)
		}
		if !ok {
			continue
		}
		cfg, err := LoadFile(fs, path, root)
		if err != nil {
			return nil, path, errors.Errorf("loading %s: %w", path, err)
		}
		zerolog.Ctx(ctx).Debug().Str("path", path).Msg("loaded config file")
		return cfg, path, nil
	}
	return Default(), "", nil
}

// WithInitializationOptions overlays the fields present in the editor's
// initialization options on a copy of c.
func (c *Config) WithInitializationOptions(opts any) (*Config, error) {
	out := c.Clone()
	if opts == nil {
		return out, nil
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, errors.Errorf("encoding initialization options: %w", err)
	}
	if string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, errors.Errorf("decoding initialization options: %w", err)
	}
	return out, nil
}

// Resolve makes the template and backend directories absolute against root.
func (c *Config) Resolve(root string) *Config {
	out := c.Clone()
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(root, p)
	}
	out.Templates = abs(out.Templates)
	for i, b := range out.Backend {
		out.Backend[i] = abs(b)
	}
	return out
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate reports every problem at once.
func (c *Config) Validate(fs afero.Fs) error {
	var result *multierror.Error

	if !c.BackendLanguage().Valid() {
		result = multierror.Append(result, errors.Errorf("lang: unsupported backend language %q", c.Lang))
	}
	if c.Templates == "" {
		result = multierror.Append(result, errors.New("templates: directory is required"))
	} else if ok, err := afero.DirExists(fs, c.Templates); err != nil || !ok {
		result = multierror.Append(result, errors.Errorf("templates: %s is not a directory", c.Templates))
	}
	for i, b := range c.Backend {
		if ok, err := afero.DirExists(fs, b); err != nil || !ok {
			result = multierror.Append(result, errors.Errorf("backend[%d]: %s is not a directory", i, b))
		}
	}
	if c.Sentinel != "" && !identifier.MatchString(c.Sentinel) {
		result = multierror.Append(result, errors.Errorf("sentinel: %q is not an identifier", c.Sentinel))
	}
	for i, call := range c.TemplateCalls {
		if !identifier.MatchString(call) {
			result = multierror.Append(result, errors.Errorf("template_calls[%d]: %q is not an identifier", i, call))
		}
	}

	return result.ErrorOrNil()
}
