// Package hover provides functionality for generating hover information.
package hover

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/walteh/jinjals/pkg/builtins"
	"github.com/walteh/jinjals/pkg/definition"
	"github.com/walteh/jinjals/pkg/expr"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/symbols"
	"github.com/walteh/jinjals/pkg/syntax"
)

// HoverInfo represents the information to be displayed in a hover tooltip
type HoverInfo struct {
	// Content is the markdown content to display
	Content string
	// Range is the range in the document that this hover applies to
	Range position.Range
}

type Hoverer struct {
	index        *index.Index
	definitions  *definition.Resolver
	catalogue    *builtins.Catalogue
	descriptions symbols.Descriptions
}

func NewHoverer(ix *index.Index, defs *definition.Resolver, catalogue *builtins.Catalogue, descriptions symbols.Descriptions) *Hoverer {
	return &Hoverer{index: ix, definitions: defs, catalogue: catalogue, descriptions: descriptions}
}

// Hover returns the hover for the filter or identifier at p.
func (h *Hoverer) Hover(ctx context.Context, uri string, p position.Point) (*HoverInfo, bool) {
	state, ok := h.index.Get(uri)
	if !ok || state.Kind() != syntax.Template || state.Tree == nil {
		return nil, false
	}
	p = state.Document.Lines().Clamp(p)

	if filter, ok := expr.FilterAt(state.Objects, p); ok {
		return h.filter(filter)
	}

	obj, idx, ok := expr.Find(state.Objects, p)
	if !ok {
		return nil, false
	}
	chain := obj.Chain()[:idx+1]
	seg := obj.Segments()[idx]
	name := strings.Join(chain, ".")

	zerolog.Ctx(ctx).Debug().Str("name", name).Msg("hover")

	if locs := h.definitions.Lookup(state, chain, p); len(locs) > 0 {
		b := locs[0].Binding
		return &HoverInfo{Content: format(name, b.Kind.String(), b.DescribeWith(h.descriptions)), Range: seg.Range}, true
	}
	if h.descriptions != nil {
		if desc, ok := h.descriptions.Description(chain); ok {
			return &HoverInfo{Content: format(name, "", desc), Range: seg.Range}, true
		}
	}
	return nil, false
}

func (h *Hoverer) filter(obj expr.Object) (*HoverInfo, bool) {
	name := obj.Last()
	if entry, ok := h.catalogue.Filter(name.Name); ok {
		return &HoverInfo{Content: entry.Markdown(), Range: name.Range}, true
	}
	// filters registered by the backend
	for _, state := range h.index.All() {
		if state.Kind() != syntax.Backend {
			continue
		}
		for _, b := range state.Bindings {
			if b.Kind == symbols.BackendVariable && b.Matches([]string{name.Name}) {
				return &HoverInfo{Content: format(name.Name, "filter", b.DescribeWith(h.descriptions)), Range: name.Range}, true
			}
		}
	}
	return nil, false
}

func format(name, kind, desc string) string {
	var sb strings.Builder
	sb.WriteString("**")
	sb.WriteString(name)
	sb.WriteString("**")
	if kind != "" {
		sb.WriteString(" _(")
		sb.WriteString(kind)
		sb.WriteString(")_")
	}
	if desc != "" {
		sb.WriteString("\n\n")
		sb.WriteString(desc)
	}
	return sb.String()
}
