// Package diagnostic reports undefined names and missing templates.
package diagnostic

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/walteh/jinjals/pkg/finder"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/symbols"
	"github.com/walteh/jinjals/pkg/syntax"
)

// Kind is what a diagnostic reports.
type Kind int

const (
	Undefined Kind = iota
	DefinedInOtherFile
	TemplateNotFound
)

func (k Kind) String() string {
	switch k {
	case DefinedInOtherFile:
		return "defined in other file"
	case TemplateNotFound:
		return "template not found"
	}
	return "undefined"
}

// Source names the server in published diagnostics.
const Source = "jinjals"

// Severity represents the severity level of a diagnostic
type Severity string

const (
	Error       Severity = "error"
	Warning     Severity = "warning"
	Information Severity = "info"
	Hint        Severity = "hint"
)

func (k Kind) Severity() Severity {
	switch k {
	case DefinedInOtherFile:
		return Information
	case TemplateNotFound:
		return Error
	}
	return Warning
}

// Diagnostic represents a single diagnostic message
type Diagnostic struct {
	Message  string
	Name     string
	Range    position.Range
	Kind     Kind
	Severity Severity
}

func newDiagnostic(kind Kind, name string, rng position.Range) Diagnostic {
	var msg string
	switch kind {
	case Undefined:
		msg = fmt.Sprintf("undefined variable: %s", name)
	case DefinedInOtherFile:
		msg = fmt.Sprintf("%s is defined in another file", name)
	case TemplateNotFound:
		msg = fmt.Sprintf("template not found: %s", name)
	}
	return Diagnostic{Message: msg, Name: name, Range: rng, Kind: kind, Severity: kind.Severity()}
}

// Generator produces the diagnostics of one file.
type Generator struct {
	index     *index.Index
	fs        afero.Fs
	templates string
}

// NewGenerator creates a generator. templates is the root template names are
// resolved against.
func NewGenerator(ix *index.Index, fs afero.Fs, templates string) *Generator {
	return &Generator{index: ix, fs: fs, templates: templates}
}

// Generate returns the file's diagnostics sorted by range. ok is false when
// the file is unknown or could not be parsed; callers publish nothing then.
func (g *Generator) Generate(ctx context.Context, uri string) ([]Diagnostic, bool) {
	state, ok := g.index.Get(uri)
	if !ok || state.Tree == nil {
		return nil, false
	}

	var out []Diagnostic
	if state.Kind() == syntax.Template {
		out = append(out, g.objects(state)...)
	}
	out = append(out, g.templateNames(state)...)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.Range.Start.Compare(b.Range.Start); c != 0 {
			return c < 0
		}
		if c := a.Range.End.Compare(b.Range.End); c != 0 {
			return c < 0
		}
		return a.Message < b.Message
	})

	zerolog.Ctx(ctx).Debug().Str("uri", state.URI).Int("diagnostics", len(out)).Msg("generated diagnostics")
	return out, true
}

func (g *Generator) objects(state *index.FileState) []Diagnostic {
	var others []*index.FileState
	for _, other := range g.index.All() {
		if other.URI != state.URI {
			others = append(others, other)
		}
	}

	var out []Diagnostic
	for _, obj := range state.Objects {
		if obj.IsFilter {
			continue
		}
		if definedBefore(state.Bindings, obj.Name, obj.Range.Start) {
			continue
		}
		if definedIn(others, obj.Name) {
			out = append(out, newDiagnostic(DefinedInOtherFile, obj.Name, obj.Range))
			continue
		}
		out = append(out, newDiagnostic(Undefined, obj.Name, obj.Range))
	}
	return out
}

func definedBefore(bindings []symbols.Binding, name string, at position.Point) bool {
	for _, b := range bindings {
		if b.Kind != symbols.TemplateName && b.Path()[0] == name && !b.Range.Start.After(at) {
			return true
		}
	}
	return false
}

func definedIn(files []*index.FileState, name string) bool {
	for _, f := range files {
		for _, b := range f.Bindings {
			if b.Kind != symbols.TemplateName && b.Path()[0] == name {
				return true
			}
		}
	}
	return false
}

func (g *Generator) templateNames(state *index.FileState) []Diagnostic {
	names := append([]symbols.Name(nil), state.Templates...)
	if state.Kind() == syntax.Template {
		for _, b := range state.Bindings {
			if b.Kind == symbols.TemplateName {
				names = append(names, symbols.Name{Name: b.Name, Range: b.Range})
			}
		}
	}

	var out []Diagnostic
	for _, n := range names {
		if n.Name == "" {
			continue
		}
		if _, ok := finder.TemplatePath(g.fs, g.templates, n.Name); !ok {
			out = append(out, newDiagnostic(TemplateNotFound, n.Name, n.Range))
		}
	}
	return out
}
