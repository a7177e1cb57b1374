package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jinjals/pkg/builtins"
	"github.com/walteh/jinjals/pkg/completion/providers"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/symbols"
)

type descriptions map[string]string

func (d descriptions) Description(path []string) (string, bool) {
	if len(path) != 1 {
		return "", false
	}
	s, ok := d[path[0]]
	return s, ok
}

func TestVariableProvider(t *testing.T) {
	p := providers.NewVariableProvider(descriptions{"title": "Page title"})
	rng := &position.Range{End: position.Point{Column: 3}}

	items := p.GetCompletions([]symbols.Binding{
		{Name: "title", Kind: symbols.SetVariable},
		{Name: "title", Kind: symbols.BackendVariable},
		{Name: "m", Kind: symbols.MacroName},
		{Name: "base.html", Kind: symbols.TemplateName},
		{Name: "user.email", Kind: symbols.BackendVariable, Fields: []string{"user", "email"}, Description: "Email"},
	}, rng, "")

	require.Len(t, items, 3)
	assert.Equal(t, providers.CompletionItem{
		Label: "title", Kind: providers.KindVariable, Detail: "variable", Documentation: "Page title", InsertText: "title", Range: rng,
	}, items[0])
	assert.Equal(t, providers.KindFunction, items[1].Kind)
	assert.Equal(t, "Email", items[2].Documentation)
}

func TestFilterProvider(t *testing.T) {
	cat, err := builtins.Parse([]byte("filters:\n  - {name: upper, doc: Up.}\n  - {name: abs, doc: Abs.}\n"))
	require.NoError(t, err)

	items := providers.NewFilterProvider(cat).GetCompletions(" }}")
	require.Len(t, items, 2)
	assert.Equal(t, "abs", items[0].Label)
	assert.Equal(t, "abs }}", items[0].InsertText)
	assert.Equal(t, providers.KindFilter, items[1].Kind)
}
