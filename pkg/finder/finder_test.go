package finder_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jinjals/pkg/finder"
)

func testFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/ws/templates/base.html":            "{{ a }}",
		"/ws/templates/users/profile.jinja":  "{{ b }}",
		"/ws/templates/partials/nav.j2":      "",
		"/ws/templates/readme.md":            "",
		"/ws/templates/node_modules/x.html":  "",
		"/ws/src/main.rs":                    "fn main() {}",
		"/ws/src/target/debug/build.rs":      "",
		"/ws/src/.git/hooks/pre-commit.html": "",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func TestDefaultFinder_Find(t *testing.T) {
	ctx := context.Background()
	f := finder.NewDefaultFinder(testFs(t))

	tests := []struct {
		name       string
		dir        string
		extensions []string
		want       []string
	}{
		{
			name:       "templates",
			dir:        "/ws/templates",
			extensions: []string{".html", ".jinja", ".j2", ".jinja2"},
			want: []string{
				"/ws/templates/base.html",
				"/ws/templates/partials/nav.j2",
				"/ws/templates/users/profile.jinja",
			},
		},
		{
			name:       "backend skips build output",
			dir:        "/ws/src",
			extensions: []string{".rs"},
			want:       []string{"/ws/src/main.rs"},
		},
		{
			name:       "no matches",
			dir:        "/ws/src",
			extensions: []string{".py"},
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Find(ctx, tt.dir, tt.extensions)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultFinder_MissingDir(t *testing.T) {
	f := finder.NewDefaultFinder(afero.NewMemMapFs())
	_, err := f.Find(context.Background(), "/nope", []string{".html"})
	require.Error(t, err)
}

func TestTemplatePath(t *testing.T) {
	fs := testFs(t)

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{name: "base.html", want: "/ws/templates/base.html", ok: true},
		{name: "users/profile.jinja", want: "/ws/templates/users/profile.jinja", ok: true},
		{name: "./users/../base.html", want: "/ws/templates/base.html", ok: true},
		{name: "missing.jinja"},
		{name: "users"},
		{name: "../src/main.rs"},
		{name: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := finder.TemplatePath(fs, "/ws/templates", tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
