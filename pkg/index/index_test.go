package index_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/walteh/jinjals/pkg/backend"
	"github.com/walteh/jinjals/pkg/document"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/symbols"
	"github.com/walteh/jinjals/pkg/syntax"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newIndex(t *testing.T) *index.Index {
	t.Helper()
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
	return ix
}

func ptr[T any](v T) *T {
	return &v
}

func names(bs []symbols.Binding) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Name)
	}
	return out
}

func TestApplyTemplate(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	state, err := ix.Apply(ctx, index.Change{
		URI:     "file:///ws/templates/a.html",
		Kind:    syntax.Template,
		Version: 1,
		Origin:  index.Editor,
		Text:    ptr(`{% for i in 10 %}{{ i }}{% endfor %}{% set class = "x" %}{{ user.email }}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "/ws/templates/a.html", state.URI)
	assert.Equal(t, []string{"i", "class"}, names(state.Bindings))
	// definition targets are objects too
	require.Len(t, state.Objects, 4)
	assert.Equal(t, []string{"user", "email"}, state.Objects[3].Chain())

	got, ok := ix.Get("/ws/templates/a.html")
	require.True(t, ok)
	assert.Same(t, state, got)
}

func TestApplyBackend(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	state, err := ix.Apply(ctx, index.Change{
		URI:  "/ws/src/main.rs",
		Kind: syntax.Backend,
		Text: ptr(`fn f() { render_jinja("a.html", context!(user, title => 1)); }`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.html", "user", "title"}, names(state.Bindings))
	require.Len(t, state.Templates, 1)
}

func TestIncrementalMatchesFull(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	src := "{% for item in items %}\n  {{ item }}\n{% endfor %}\n"
	_, err := ix.Apply(ctx, index.Change{URI: "/a.html", Kind: syntax.Template, Text: ptr(src)})
	require.NoError(t, err)

	changes := []document.Change{
		{Range: &document.EditorRange{StartLine: 3, StartCharacter: 0, EndLine: 3, EndCharacter: 0}, Text: "{% set total = 1 %}\n"},
		{Range: &document.EditorRange{StartLine: 0, StartCharacter: 7, EndLine: 0, EndCharacter: 11}, Text: "key, value"},
		{Range: &document.EditorRange{StartLine: 1, StartCharacter: 5, EndLine: 1, EndCharacter: 9}, Text: "value"},
	}
	incremental, err := ix.Apply(ctx, index.Change{URI: "/a.html", Version: 2, Changes: changes})
	require.NoError(t, err)

	want := "{% for key, value in items %}\n  {{ value }}\n{% endfor %}\n{% set total = 1 %}\n"
	require.Equal(t, want, string(incremental.Document.Text()))

	full, err := ix.Apply(ctx, index.Change{URI: "/b.html", Kind: syntax.Template, Text: ptr(want)})
	require.NoError(t, err)

	assert.Equal(t, full.Bindings, incremental.Bindings)
	assert.Equal(t, full.Objects, incremental.Objects)
	assert.Equal(t, []string{"key", "value", "total"}, names(incremental.Bindings))
}

func TestUnknownFileUpdate(t *testing.T) {
	ix := newIndex(t)
	_, err := ix.Apply(context.Background(), index.Change{URI: "/nope.html", Changes: []document.Change{{Text: "x"}}})
	require.ErrorIs(t, err, index.ErrNotIndexed)
}

func TestDiskDoesNotOverrideEditor(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	_, err := ix.Apply(ctx, index.Change{URI: "/a.html", Origin: index.Editor, Text: ptr("{% set a = 1 %}")})
	require.NoError(t, err)

	state, err := ix.Apply(ctx, index.Change{URI: "/a.html", Origin: index.Disk, Text: ptr("{% set b = 1 %}")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(state.Bindings))

	_, err = ix.Detach(ctx, "/a.html")
	require.NoError(t, err)

	state, err = ix.Apply(ctx, index.Change{URI: "/a.html", Origin: index.Disk, Text: ptr("{% set b = 1 %}")})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(state.Bindings))
}

func TestParseFailureKeepsDocument(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	_, err := ix.Apply(ctx, index.Change{URI: "/bad.rs", Kind: syntax.Backend, Text: ptr("fn f() {\xff}")})
	require.ErrorIs(t, err, syntax.ErrParseFailure)

	state, ok := ix.Get("/bad.rs")
	require.True(t, ok)
	assert.Nil(t, state.Tree)

	// the next change reparses from scratch
	state, err = ix.Apply(ctx, index.Change{URI: "/bad.rs", Version: 2, Changes: []document.Change{
		{Range: &document.EditorRange{StartLine: 0, StartCharacter: 0, EndLine: 0, EndCharacter: 20}, Text: `fn f() { context!(x); }`},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names(state.Bindings))
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	const files, edits = 8, 20
	var wg sync.WaitGroup
	for f := 0; f < files; f++ {
		uri := fmt.Sprintf("/t%d.html", f)
		_, err := ix.Apply(ctx, index.Change{URI: uri, Text: ptr("")})
		require.NoError(t, err)

		for e := 0; e < edits; e++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ix.Apply(ctx, index.Change{URI: uri, Version: int32(e + 2), Changes: []document.Change{
					{Range: &document.EditorRange{}, Text: "{% set v = 1 %}"},
				}})
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	all := ix.All()
	require.Len(t, all, files)
	for _, state := range all {
		assert.Len(t, state.Bindings, edits, state.URI)
	}
}

func TestRemoveStopsWriter(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	_, err := ix.Apply(ctx, index.Change{URI: "/a.html", Text: ptr("{{ a }}")})
	require.NoError(t, err)

	ix.Remove(ctx, "/a.html")
	_, ok := ix.Get("/a.html")
	assert.False(t, ok)

	_, err = ix.Apply(ctx, index.Change{URI: "/a.html", Changes: []document.Change{{Text: "x"}}})
	require.ErrorIs(t, err, index.ErrNotIndexed)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t)

	_, err := ix.Apply(ctx, index.Change{URI: "/a.html", Text: ptr("{{ a }}")})
	require.NoError(t, err)

	ix.Close()
	_, err = ix.Apply(ctx, index.Change{URI: "/a.html", Text: ptr("{{ b }}")})
	require.ErrorIs(t, err, index.ErrClosed)

	// snapshots stay readable
	_, ok := ix.Get("/a.html")
	assert.True(t, ok)
}

func TestCancelledContext(t *testing.T) {
	ix := newIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.Apply(ctx, index.Change{URI: "/a.html", Text: ptr("{{ a }}")})
	require.Error(t, err)
}
