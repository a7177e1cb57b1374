package completion_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jinjals/pkg/backend"
	"github.com/walteh/jinjals/pkg/builtins"
	"github.com/walteh/jinjals/pkg/completion"
	"github.com/walteh/jinjals/pkg/completion/providers"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/syntax"
)

const backendSource = `
fn setup(jinja: &mut Environment) {
    jinja.add_global("user.email", "The user's email");
    jinja.add_global("user.name", "The user's name");
    render_jinja("page.html", context!(site));
}
`

func setup(t *testing.T, template string) (*completion.Completer, position.Point) {
	t.Helper()
	ctx := context.Background()

	store, err := syntax.NewStore(syntax.BackendRust)
	require.NoError(t, err)
	ex, err := backend.NewExtractor(syntax.BackendRust)
	require.NoError(t, err)
	ix := index.New(store, ex)
	t.Cleanup(func() {
		ix.Close()
		ex.Close()
		store.Close()
	})

	src := backendSource
	_, err = ix.Apply(ctx, index.Change{URI: "/ws/src/main.rs", Kind: syntax.Backend, Text: &src})
	require.NoError(t, err)

	idx := strings.Index(template, "|^|")
	require.GreaterOrEqual(t, idx, 0)
	text := template[:idx] + template[idx+3:]
	_, err = ix.Apply(ctx, index.Change{URI: "/ws/templates/page.html", Kind: syntax.Template, Text: &text})
	require.NoError(t, err)

	return completion.NewCompleter(ix, builtins.Default(), nil), position.NewLineIndex([]byte(text)).Point(idx)
}

func labels(items []providers.CompletionItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []string
		contains []string
		absent   []string
	}{
		{
			name:     "filter after a pipe",
			template: "{{ value ||^| }}",
			contains: []string{"upper", "lower", "default"},
			absent:   []string{"value", "site"},
		},
		{
			name:     "identifier in an empty expression",
			template: "{% set title = 1 %}{{ |^| }}",
			want:     []string{"title", "user.email", "user.name", "site"},
		},
		{
			name:     "incomplete identifier filters by prefix",
			template: "{% set title = 1 %}{% set total = 2 %}{{ tit|^| }}",
			want:     []string{"title"},
		},
		{
			name:     "dotted backend field",
			template: "{{ user.e|^| }}",
			want:     []string{"user.email"},
		},
		{
			name:     "loop variable outside its loop",
			template: "{% for item in items %}{% endfor %}{{ i|^| }}",
			want:     nil,
		},
		{
			name:     "loop variable inside its loop",
			template: "{% for item in items %}{{ i|^| }}{% endfor %}",
			want:     []string{"item"},
		},
		{
			name:     "outside any expression",
			template: "hello |^|{{ a }}",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, p := setup(t, tt.template)
			items := c.Complete(context.Background(), "/ws/templates/page.html", p)

			got := labels(items)
			if tt.contains != nil {
				for _, want := range tt.contains {
					assert.Contains(t, got, want)
				}
				for _, absent := range tt.absent {
					assert.NotContains(t, got, absent)
				}
				return
			}
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompleteReplaceRange(t *testing.T) {
	c, p := setup(t, "{{ user.na|^|me }}")
	items := c.Complete(context.Background(), "/ws/templates/page.html", p)

	require.Len(t, items, 1)
	assert.Equal(t, "user.name", items[0].Label)
	assert.Equal(t, "The user's name", items[0].Documentation)
	require.NotNil(t, items[0].Range)
	assert.Equal(t, position.Range{
		Start: position.Point{Column: 3},
		End:   position.Point{Column: 12},
	}, *items[0].Range)
}

func TestCompleteAutoclose(t *testing.T) {
	c, p := setup(t, "{% set title = 1 %}{{ ti|^|")
	items := c.Complete(context.Background(), "/ws/templates/page.html", p)

	require.Len(t, items, 1)
	assert.Equal(t, "title }}", items[0].InsertText)
}

func TestCompleteBackendFile(t *testing.T) {
	c, _ := setup(t, "|^|")
	assert.Nil(t, c.Complete(context.Background(), "/ws/src/main.rs", position.Point{Row: 2}))
	assert.Nil(t, c.Complete(context.Background(), "/ws/missing.html", position.Point{}))
}
