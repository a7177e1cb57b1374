package providers

import (
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/symbols"
)

// VariableProvider handles variable completions
type VariableProvider struct {
	descriptions symbols.Descriptions
}

// NewVariableProvider creates a new variable completion provider
func NewVariableProvider(descriptions symbols.Descriptions) *VariableProvider {
	return &VariableProvider{descriptions: descriptions}
}

// GetCompletions returns one item per binding name, keeping the first
// binding seen for each. When rng is set the items replace it.
func (p *VariableProvider) GetCompletions(bindings []symbols.Binding, rng *position.Range, suffix string) []CompletionItem {
	var completions []CompletionItem
	seen := map[string]bool{}

	for _, b := range bindings {
		if b.Kind == symbols.TemplateName || seen[b.Name] {
			continue
		}
		seen[b.Name] = true

		completions = append(completions, CompletionItem{
			Label:         b.Name,
			Kind:          kindOf(b.Kind),
			Detail:        b.Kind.String(),
			Documentation: b.DescribeWith(p.descriptions),
			InsertText:    b.Name + suffix,
			Range:         rng,
		})
	}

	return completions
}

func kindOf(k symbols.Kind) Kind {
	switch k {
	case symbols.MacroName:
		return KindFunction
	case symbols.ImportedName:
		return KindModule
	}
	return KindVariable
}
