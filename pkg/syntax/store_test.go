package syntax_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/syntax"
)

func edit(src string, start, oldEnd int, text string) (string, *position.Edit) {
	out := src[:start] + text + src[oldEnd:]
	oldLines := position.NewLineIndex([]byte(src))
	newLines := position.NewLineIndex([]byte(out))
	return out, &position.Edit{
		StartByte:   start,
		OldEndByte:  oldEnd,
		NewEndByte:  start + len(text),
		StartPoint:  oldLines.Point(start),
		OldEndPoint: oldLines.Point(oldEnd),
		NewEndPoint: newLines.Point(start + len(text)),
	}
}

func TestStoreBackendIncremental(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		lang syntax.BackendLanguage
		src  string
		at   int
		text string
	}{
		{
			lang: syntax.BackendRust,
			src:  "fn main() {\n    let c = context!(user => 1);\n}\n",
			at:   len("fn main() {\n    let c = context!(user"),
			text: ", name => 2",
		},
		{
			lang: syntax.BackendPython,
			src:  "def view():\n    return render_template(\"a.html\")\n",
			at:   len("def view():\n    return render_template(\"a.html\""),
			text: ", user=u",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			store, err := syntax.NewStore(tt.lang)
			require.NoError(t, err)
			defer store.Close()

			first, err := store.Parse(ctx, "file", syntax.Backend, []byte(tt.src), nil)
			require.NoError(t, err)
			before := first.Backend.RootNode().ToSexp()

			out, delta := edit(tt.src, tt.at, tt.at, tt.text)
			incremental, err := store.Parse(ctx, "file", syntax.Backend, []byte(out), delta)
			require.NoError(t, err)

			full, err := syntax.NewStore(tt.lang)
			require.NoError(t, err)
			defer full.Close()
			want, err := full.Parse(ctx, "file", syntax.Backend, []byte(out), nil)
			require.NoError(t, err)

			assert.Equal(t, want.Backend.RootNode().ToSexp(), incremental.Backend.RootNode().ToSexp())
			// the previous snapshot is untouched by the edit
			assert.Equal(t, before, first.Backend.RootNode().ToSexp())

			current, ok := store.Tree("file", syntax.Backend)
			require.True(t, ok)
			assert.Same(t, incremental, current)
		})
	}
}

func TestStoreTemplate(t *testing.T) {
	ctx := context.Background()
	store, err := syntax.NewStore(syntax.BackendRust)
	require.NoError(t, err)
	defer store.Close()

	src := "{% for x in y %}{{ x }}{% endfor %}"
	_, err = store.Parse(ctx, "a.jinja", syntax.Template, []byte(src), nil)
	require.NoError(t, err)

	out, delta := edit(src, len(src), len(src), "{{ z }}")
	tree, err := store.Parse(ctx, "a.jinja", syntax.Template, []byte(out), delta)
	require.NoError(t, err)
	assert.Equal(t, syntax.Template, tree.Kind)
	assert.Len(t, tree.Template.Root.Children, 4)

	store.Remove("a.jinja")
	_, ok := store.Tree("a.jinja", syntax.Template)
	assert.False(t, ok)
}

func TestStoreRejectsInvalidUTF8Backend(t *testing.T) {
	store, err := syntax.NewStore(syntax.BackendRust)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Parse(context.Background(), "bad.rs", syntax.Backend, []byte{0xff, 0xfe}, nil)
	require.ErrorIs(t, err, syntax.ErrParseFailure)
}

func TestStoreSetBackend(t *testing.T) {
	store, err := syntax.NewStore(syntax.BackendRust)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetBackend(syntax.BackendPython))
	assert.Equal(t, syntax.BackendPython, store.BackendLanguage())
	require.Error(t, store.SetBackend("cobol"))
}
