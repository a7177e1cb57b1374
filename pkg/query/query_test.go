package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/query"
	"github.com/walteh/jinjals/pkg/syntax"
	"github.com/walteh/jinjals/pkg/syntax/jinja"
)

type roleText struct {
	Role string
	Text string
}

func roles(caps []query.Capture) []roleText {
	out := make([]roleText, 0, len(caps))
	for _, c := range caps {
		out = append(out, roleText{c.Role, c.Text})
	}
	return out
}

func TestObjectPass(t *testing.T) {
	tree := jinja.Parse([]byte("{{ a.b | up }} {{ c }}"))

	tests := []struct {
		name string
		opts query.Options
		want []roleText
	}{
		{
			name: "capture all",
			opts: query.Options{CaptureAll: true},
			want: []roleText{
				{"expression", "{{ a.b | up }}"},
				{"open", "{{"},
				{"identifier", "a"},
				{"dot", "."},
				{"identifier", "b"},
				{"pipe", "|"},
				{"identifier", "up"},
				{"close", "}}"},
				{"expression", "{{ c }}"},
				{"open", "{{"},
				{"identifier", "c"},
				{"close", "}}"},
			},
		},
		{
			name: "stops after the trigger",
			opts: query.Options{Trigger: position.Point{Row: 0, Column: 6}},
			want: []roleText{
				{"expression", "{{ a.b | up }}"},
				{"open", "{{"},
				{"identifier", "a"},
				{"dot", "."},
				{"identifier", "b"},
			},
		},
		{
			name: "trigger at the start keeps the node",
			opts: query.Options{Trigger: position.Point{Row: 0, Column: 0}},
			want: []roleText{
				{"expression", "{{ a.b | up }}"},
				{"open", "{{"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.Collect(query.PassObjects.Patterns().Run(tree, tt.opts))
			assert.Equal(t, tt.want, roles(got))
		})
	}
}

func TestMissingCloserPastTrigger(t *testing.T) {
	tree := jinja.Parse([]byte("{{ a | \n<p>{{ b }}"))

	got := query.Collect(query.PassObjects.Patterns().Run(tree, query.Options{Trigger: position.Point{Row: 0, Column: 6}}))
	require.NotEmpty(t, got)
	assert.Equal(t, []roleText{
		{"expression", "{{ a | \n<p>"},
		{"open", "{{"},
		{"identifier", "a"},
		{"pipe", "|"},
		{"close", ""},
	}, roles(got))

	last := got[len(got)-1]
	assert.True(t, last.Missing)
	assert.Equal(t, position.Point{Row: 1, Column: 3}, last.Range.Start)
}

func TestDefinitionPass(t *testing.T) {
	tree := jinja.Parse([]byte(`{% for k in items if k %}{% include "a.html" %}{% endfor %}`))

	got := query.Collect(query.PassDefinitions.Patterns().Run(tree, query.Options{CaptureAll: true}))
	assert.Equal(t, []roleText{
		{"statement", "{% for k in items if k %}"},
		{"definition", "for"},
		{"id", "k"},
		{"keyword", "in"},
		{"id", "items"},
		{"keyword", "if"},
		{"id", "k"},
		{"statement", `{% include "a.html" %}`},
		{"definition", "include"},
		{"string", `"a.html"`},
		{"statement", "{% endfor %}"},
		{"scope_end", "endfor"},
	}, roles(got))
}

func TestRunStopsWhenConsumerStops(t *testing.T) {
	tree := jinja.Parse([]byte("{{ a }}{{ b }}{{ c }}"))

	n := 0
	for range query.PassObjects.Patterns().Run(tree, query.Options{CaptureAll: true}) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		pattern query.Pattern
	}{
		{name: "no role", pattern: query.Pattern{Kinds: []string{jinja.KindIdentifier}}},
		{name: "no kinds", pattern: query.Pattern{Role: "x"}},
		{name: "unknown kind", pattern: query.Pattern{Role: "x", Kinds: []string{"nope"}}},
		{name: "bad regexp", pattern: query.Pattern{Role: "x", Kinds: []string{jinja.KindOperator}, Text: "("}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := query.Compile(tt.pattern)
			require.Error(t, err)
			assert.Panics(t, func() { query.MustCompile(tt.pattern) })
		})
	}
}

func TestTreeSitterPatterns(t *testing.T) {
	store, err := syntax.NewStore(syntax.BackendRust)
	require.NoError(t, err)
	defer store.Close()

	src := []byte("fn a() { b(); }\nfn c() {}\n")
	tree, err := store.Parse(context.Background(), "a.rs", syntax.Backend, src, nil)
	require.NoError(t, err)

	ps, err := query.CompileTreeSitter(syntax.BackendRust, `(function_item name: (identifier) @fn.name)`)
	require.NoError(t, err)
	defer ps.Close()

	all := query.Collect(ps.Run(tree.Backend, src, query.Options{CaptureAll: true}))
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Text)
	assert.Equal(t, "fn.name", all[0].Role)
	assert.Equal(t, "c", all[1].Text)
	assert.NotEqual(t, all[0].Match, all[1].Match)

	first := query.Collect(ps.Run(tree.Backend, src, query.Options{Trigger: position.Point{Row: 0, Column: 10}}))
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].Text)

	_, err = query.CompileTreeSitter(syntax.BackendRust, `(not_a_node) @x`)
	require.Error(t, err)
}
