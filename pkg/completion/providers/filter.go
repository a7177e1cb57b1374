package providers

import (
	"github.com/walteh/jinjals/pkg/builtins"
)

// FilterProvider handles filter completions
type FilterProvider struct {
	catalogue *builtins.Catalogue
}

func NewFilterProvider(catalogue *builtins.Catalogue) *FilterProvider {
	return &FilterProvider{catalogue: catalogue}
}

// GetCompletions returns every builtin filter. suffix is appended to the insert text.
func (p *FilterProvider) GetCompletions(suffix string) []CompletionItem {
	completions := make([]CompletionItem, 0, len(p.catalogue.Filters))
	for _, f := range p.catalogue.Filters {
		completions = append(completions, CompletionItem{
			Label:         f.Name,
			Kind:          KindFilter,
			Detail:        "filter",
			Documentation: f.Doc,
			InsertText:    f.Name + suffix,
		})
	}
	return completions
}
