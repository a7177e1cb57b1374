// Package completion answers completion requests for template files.
package completion

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/walteh/jinjals/pkg/builtins"
	"github.com/walteh/jinjals/pkg/completion/providers"
	"github.com/walteh/jinjals/pkg/expr"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/query"
	"github.com/walteh/jinjals/pkg/symbols"
	"github.com/walteh/jinjals/pkg/syntax"
)

type Completer struct {
	index     *index.Index
	filters   *providers.FilterProvider
	variables *providers.VariableProvider
}

func NewCompleter(ix *index.Index, catalogue *builtins.Catalogue, descriptions symbols.Descriptions) *Completer {
	return &Completer{
		index:     ix,
		filters:   providers.NewFilterProvider(catalogue),
		variables: providers.NewVariableProvider(descriptions),
	}
}

// Complete returns the completion items at p, or nil when nothing applies.
func (c *Completer) Complete(ctx context.Context, uri string, p position.Point) []providers.CompletionItem {
	state, ok := c.index.Get(uri)
	if !ok || state.Kind() != syntax.Template || state.Tree == nil {
		return nil
	}
	p = state.Document.Lines().Clamp(p)

	r := expr.Resolve(query.PassObjects.Patterns().Run(state.Tree.Template, query.Options{Trigger: p}))
	comp := r.CompletionAt(p)

	zerolog.Ctx(ctx).Debug().Stringer("point", p).Stringer("kind", comp.Kind).Str("prefix", comp.Prefix).Msg("completion")

	suffix := ""
	if comp.Autoclose {
		suffix = " " + comp.Closer
	}

	switch comp.Kind {
	case expr.FilterCompletion:
		return c.filters.GetCompletions(suffix)
	case expr.IdentifierCompletion:
		return c.variables.GetCompletions(c.Visible(state, p), nil, suffix)
	case expr.IncompleteIdentifierCompletion:
		obj, idx, ok := r.ObjectAt(p)
		if !ok {
			return nil
		}
		candidates := matching(c.Visible(state, p), obj.Chain()[:idx], comp.Prefix)
		rng := comp.Range
		return c.variables.GetCompletions(candidates, &rng, suffix)
	}
	return nil
}

// Visible returns the file's bindings visible at p followed by every
// backend variable in the index.
func (c *Completer) Visible(state *index.FileState, p position.Point) []symbols.Binding {
	var out []symbols.Binding
	for _, b := range state.Bindings {
		if b.VisibleAt(p) {
			out = append(out, b)
		}
	}
	for _, other := range c.index.All() {
		if other.Kind() != syntax.Backend {
			continue
		}
		for _, b := range other.Bindings {
			if b.Kind == symbols.BackendVariable {
				out = append(out, b)
			}
		}
	}
	return out
}

// matching keeps the bindings whose path starts with parents and whose next
// segment starts with prefix.
func matching(bindings []symbols.Binding, parents []string, prefix string) []symbols.Binding {
	var out []symbols.Binding
	for _, b := range bindings {
		path := b.Path()
		if len(path) <= len(parents) {
			continue
		}
		ok := true
		for i, seg := range parents {
			if path[i] != seg {
				ok = false
				break
			}
		}
		if ok && strings.HasPrefix(path[len(parents)], prefix) {
			out = append(out, b)
		}
	}
	return out
}
