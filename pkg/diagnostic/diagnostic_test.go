package diagnostic_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jinjals/pkg/backend"
	"github.com/walteh/jinjals/pkg/diagnostic"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/syntax"
)

type fixture struct {
	generator *diagnostic.Generator
	index     *index.Index
}

func setup(t *testing.T, files map[string]string) fixture {
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

	fs := afero.NewMemMapFs()
	for uri, text := range files {
		kind := syntax.Template
		if strings.HasSuffix(uri, ".rs") {
			kind = syntax.Backend
		}
		text := text
		_, err := ix.Apply(ctx, index.Change{URI: uri, Kind: kind, Text: &text})
		require.NoError(t, err)
		require.NoError(t, afero.WriteFile(fs, uri, []byte(text), 0o644))
	}

	return fixture{generator: diagnostic.NewGenerator(ix, fs, "/ws/templates"), index: ix}
}

func rangeOf(src, needle string) position.Range {
	idx := strings.Index(src, needle)
	lines := position.NewLineIndex([]byte(src))
	return position.Range{Start: lines.Point(idx), End: lines.Point(idx + len(needle))}
}

type summary struct {
	Name     string
	Kind     diagnostic.Kind
	Severity diagnostic.Severity
}

func summarize(diags []diagnostic.Diagnostic) []summary {
	out := []summary{}
	for _, d := range diags {
		out = append(out, summary{d.Name, d.Kind, d.Severity})
	}
	return out
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		uri   string
		want  []summary
	}{
		{
			name:  "local definitions are not reported",
			files: map[string]string{"/ws/templates/a.html": "{% set title = 1 %}{{ title }}{% for i in [1] %}{{ i }}{% endfor %}"},
			uri:   "/ws/templates/a.html",
			want:  []summary{},
		},
		{
			name:  "unknown name is a warning",
			files: map[string]string{"/ws/templates/a.html": "{{ missing.field }}"},
			uri:   "/ws/templates/a.html",
			want:  []summary{{"missing", diagnostic.Undefined, diagnostic.Warning}},
		},
		{
			name:  "use before definition is undefined",
			files: map[string]string{"/ws/templates/a.html": "{{ late }}{% set late = 1 %}"},
			uri:   "/ws/templates/a.html",
			want:  []summary{{"late", diagnostic.Undefined, diagnostic.Warning}},
		},
		{
			name: "backend variable is defined in another file",
			files: map[string]string{
				"/ws/src/main.rs":      `fn f() { render_jinja("a.html", context!(user => u)); }`,
				"/ws/templates/a.html": "{{ user.name }}",
			},
			uri:  "/ws/templates/a.html",
			want: []summary{{"user", diagnostic.DefinedInOtherFile, diagnostic.Information}},
		},
		{
			name:  "filters are never reported",
			files: map[string]string{"/ws/templates/a.html": "{% set v = 1 %}{{ v | unknown_filter }}"},
			uri:   "/ws/templates/a.html",
			want:  []summary{},
		},
		{
			name: "existing include is not reported",
			files: map[string]string{
				"/ws/templates/a.html":      `{% include "partial.html" %}`,
				"/ws/templates/partial.html": "hi",
			},
			uri:  "/ws/templates/a.html",
			want: []summary{},
		},
		{
			name: "backend render of a missing template",
			files: map[string]string{
				"/ws/src/main.rs": `fn f() { render_jinja("gone.html", ctx); }`,
			},
			uri:  "/ws/src/main.rs",
			want: []summary{{"gone.html", diagnostic.TemplateNotFound, diagnostic.Error}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.files)
			got, ok := f.generator.Generate(context.Background(), tt.uri)
			require.True(t, ok)
			assert.Equal(t, tt.want, summarize(got))
		})
	}
}

func TestMissingInclude(t *testing.T) {
	src := `<div>{% include "missing.jinja" %}</div>`
	f := setup(t, map[string]string{"/ws/templates/page.html": src})

	got, ok := f.generator.Generate(context.Background(), "/ws/templates/page.html")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, diagnostic.TemplateNotFound, got[0].Kind)
	assert.Equal(t, diagnostic.Error, got[0].Severity)
	assert.Equal(t, "missing.jinja", got[0].Name)
	assert.Equal(t, rangeOf(src, `"missing.jinja"`), got[0].Range)
}

func TestIncludeEscapingRoot(t *testing.T) {
	src := `{% include "../secret.html" %}`
	f := setup(t, map[string]string{
		"/ws/templates/page.html": src,
		"/ws/secret.html":         "x",
	})

	got, ok := f.generator.Generate(context.Background(), "/ws/templates/page.html")
	require.True(t, ok)
	assert.Equal(t, []summary{{"../secret.html", diagnostic.TemplateNotFound, diagnostic.Error}}, summarize(got))
}

func TestGenerateIsIdempotent(t *testing.T) {
	src := "{{ b }}{{ a }}{% include \"x.html\" %}{{ c | upper }}"
	f := setup(t, map[string]string{"/ws/templates/page.html": src})
	ctx := context.Background()

	first, ok := f.generator.Generate(ctx, "/ws/templates/page.html")
	require.True(t, ok)
	second, ok := f.generator.Generate(ctx, "/ws/templates/page.html")
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"b", "a", "x.html", "c"}, []string{first[0].Name, first[1].Name, first[2].Name, first[3].Name})
}

func TestGenerateUnknownFile(t *testing.T) {
	f := setup(t, nil)
	_, ok := f.generator.Generate(context.Background(), "/ws/templates/none.html")
	assert.False(t, ok)
}

func TestFormatters(t *testing.T) {
	src := "é {{ missing }}"
	report := diagnostic.Report{
		URI:   "file:///ws/templates/a.html",
		Lines: position.NewLineIndex([]byte(src)),
		Diagnostics: []diagnostic.Diagnostic{{
			Message:  "undefined variable: missing",
			Name:     "missing",
			Range:    rangeOf(src, "missing"),
			Kind:     diagnostic.Undefined,
			Severity: diagnostic.Warning,
		}},
	}

	t.Run("vscode", func(t *testing.T) {
		out, err := diagnostic.NewVSCodeFormatter().Format([]diagnostic.Report{report})
		require.NoError(t, err)

		var decoded []struct {
			URI         string `json:"uri"`
			Diagnostics []struct {
				Severity int    `json:"severity"`
				Message  string `json:"message"`
				Range    struct {
					Start struct{ Line, Character int } `json:"start"`
					End   struct{ Line, Character int } `json:"end"`
				} `json:"range"`
			} `json:"diagnostics"`
		}
		require.NoError(t, json.Unmarshal(out, &decoded))
		require.Len(t, decoded, 1)
		require.Len(t, decoded[0].Diagnostics, 1)
		d := decoded[0].Diagnostics[0]
		assert.Equal(t, 2, d.Severity)
		// é is two bytes but one UTF-16 unit
		assert.Equal(t, 5, d.Range.Start.Character)
		assert.Equal(t, 12, d.Range.End.Character)
	})

	t.Run("text", func(t *testing.T) {
		out, err := diagnostic.NewTextFormatter().Format([]diagnostic.Report{report})
		require.NoError(t, err)
		assert.Equal(t, "file:///ws/templates/a.html:1:7: warning: undefined variable: missing\n", string(out))
	})
}
