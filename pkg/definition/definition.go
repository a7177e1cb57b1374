// Package definition resolves the bindings an object in a template refers to.
package definition

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/walteh/jinjals/pkg/expr"
	"github.com/walteh/jinjals/pkg/finder"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/symbols"
	"github.com/walteh/jinjals/pkg/syntax"
)

// Location is a definition site. Binding is the zero value for template files.
type Location struct {
	URI     string
	Range   position.Range
	Binding symbols.Binding
}

type Resolver struct {
	index     *index.Index
	fs        afero.Fs
	templates string
}

// NewResolver creates a resolver. templates is the root template names are
// resolved against.
func NewResolver(ix *index.Index, fs afero.Fs, templates string) *Resolver {
	return &Resolver{index: ix, fs: fs, templates: templates}
}

// Goto returns the definition sites of whatever is at p. A template name
// resolves to the template file.
func (r *Resolver) Goto(ctx context.Context, uri string, p position.Point) []Location {
	state, ok := r.index.Get(uri)
	if !ok || state.Tree == nil {
		return nil
	}
	p = state.Document.Lines().Clamp(p)

	if loc, ok := r.templateAt(state, p); ok {
		return []Location{loc}
	}
	if state.Kind() != syntax.Template {
		return nil
	}

	obj, idx, ok := expr.Find(state.Objects, p)
	if !ok {
		return nil
	}
	chain := obj.Chain()[:idx+1]
	locs := r.Lookup(state, chain, p)

	zerolog.Ctx(ctx).Debug().Strs("chain", chain).Int("locations", len(locs)).Msg("goto definition")
	return locs
}

func (r *Resolver) templateAt(state *index.FileState, p position.Point) (Location, bool) {
	names := append([]symbols.Name(nil), state.Templates...)
	if state.Kind() == syntax.Template {
		for _, b := range state.Bindings {
			if b.Kind == symbols.TemplateName {
				names = append(names, symbols.Name{Name: b.Name, Range: b.Range})
			}
		}
	}
	for _, n := range names {
		if !n.Range.Touches(p) {
			continue
		}
		path, ok := finder.TemplatePath(r.fs, r.templates, n.Name)
		if !ok {
			return Location{}, false
		}
		return Location{URI: path}, true
	}
	return Location{}, false
}

// Lookup finds the bindings for a dotted chain. The last definition in the
// file that starts at or before p wins; the first declared wins a tie. When
// the file has none, every file's matching bindings are returned.
func (r *Resolver) Lookup(state *index.FileState, chain []string, p position.Point) []Location {
	if b, ok := Local(state.Bindings, chain, p); ok {
		return []Location{{URI: state.URI, Range: b.Range, Binding: b}}
	}

	var out []Location
	for _, other := range r.index.All() {
		for _, b := range other.Bindings {
			if b.Kind != symbols.TemplateName && b.Matches(chain) {
				out = append(out, Location{URI: other.URI, Range: b.Range, Binding: b})
			}
		}
	}
	return out
}

// Local returns the last binding for chain defined at or before p.
func Local(bindings []symbols.Binding, chain []string, p position.Point) (symbols.Binding, bool) {
	var (
		best  symbols.Binding
		found bool
	)
	for _, b := range bindings {
		if b.Kind == symbols.TemplateName || !b.Matches(chain) || b.Range.Start.After(p) {
			continue
		}
		if !found || b.Range.Start.After(best.Range.Start) {
			best, found = b, true
		}
	}
	return best, found
}
