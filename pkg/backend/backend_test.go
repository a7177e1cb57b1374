package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/jinjals/pkg/backend"
	"github.com/walteh/jinjals/pkg/diff"
	"github.com/walteh/jinjals/pkg/syntax"
	"github.com/walteh/jinjals/pkg/symbols"
)

type found struct {
	Name        string
	Kind        symbols.Kind
	Fields      []string
	Description string
}

func extract(t *testing.T, lang syntax.BackendLanguage, src string, opts ...backend.Option) backend.Result {
	t.Helper()
	ctx := context.Background()

	store, err := syntax.NewStore(lang)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	tree, err := store.Parse(ctx, "src", syntax.Backend, []byte(src), nil)
	require.NoError(t, err)

	ex, err := backend.NewExtractor(lang, opts...)
	require.NoError(t, err)
	t.Cleanup(ex.Close)

	return ex.Extract(ctx, tree.Backend, []byte(src))
}

func summarize(res backend.Result) []found {
	var out []found
	for _, b := range res.Bindings {
		out = append(out, found{b.Name, b.Kind, b.Fields, b.Description})
	}
	return out
}

func TestRust(t *testing.T) {
	src := `
fn handler(jinja: &mut Environment) {
    jinja.add_global("user.email", "The signed in user's email");
    jinja.add_filter("money", money);
    other.add_global("ignored", 1);
    let tmpl = jinja.get_template("users/profile.jinja").unwrap();
    let ctx = context!(user => current_user, title, nested => context!{ inner => 1 });
    render_jinja(&state, "index.html", ctx);
}
`
	res := extract(t, syntax.BackendRust, src)

	diff.Equal(t, []found{
		{Name: "user.email", Kind: symbols.BackendVariable, Fields: []string{"user", "email"}, Description: "The signed in user's email"},
		{Name: "money", Kind: symbols.BackendVariable, Fields: []string{"money"}},
		{Name: "users/profile.jinja", Kind: symbols.TemplateName},
		{Name: "user", Kind: symbols.BackendVariable},
		{Name: "title", Kind: symbols.BackendVariable},
		{Name: "nested", Kind: symbols.BackendVariable},
		{Name: "index.html", Kind: symbols.TemplateName},
	}, summarize(res))

	require.Len(t, res.Templates, 2)
	assert.Equal(t, "users/profile.jinja", res.Templates[0].Name)
	// template names point at the literal, quotes included
	assert.Equal(t, 5, res.Templates[0].Range.Start.Row)
	assert.Equal(t, len(`    let tmpl = jinja.get_template(`), res.Templates[0].Range.Start.Column)
}

func TestRustCustomSentinel(t *testing.T) {
	src := `fn f() { env.add_global("site", 1); jinja.add_global("skipped", 2); }`
	res := extract(t, syntax.BackendRust, src, backend.WithSentinel("env"))

	assert.Equal(t, []found{
		{Name: "site", Kind: symbols.BackendVariable, Fields: []string{"site"}},
	}, summarize(res))
}

func TestRustPathQualifiedContext(t *testing.T) {
	src := `fn f() { let ctx = minijinja::context!{ page, count => 2 }; other::context2!(skipped); }`
	res := extract(t, syntax.BackendRust, src)

	assert.Equal(t, []found{
		{Name: "page", Kind: symbols.BackendVariable},
		{Name: "count", Kind: symbols.BackendVariable},
	}, summarize(res))
	require.Len(t, res.Bindings, 2)
	assert.Equal(t, len("fn f() { let ctx = minijinja::context!{ "), res.Bindings[0].Range.Start.Column)
}

func TestRustRawString(t *testing.T) {
	res := extract(t, syntax.BackendRust, `fn f() { get_template(r#"a.html"#); }`)
	require.Len(t, res.Templates, 1)
	assert.Equal(t, "a.html", res.Templates[0].Name)
}

func TestPython(t *testing.T) {
	src := `
def view(request):
    jinja.add_global("site.name", "Site name")
    context = {"user": request.user, "title": "Home"}
    return render_template("home.html", items=items, **context)
`
	res := extract(t, syntax.BackendPython, src)

	assert.Equal(t, []found{
		{Name: "site.name", Kind: symbols.BackendVariable, Fields: []string{"site", "name"}, Description: "Site name"},
		{Name: "user", Kind: symbols.BackendVariable},
		{Name: "title", Kind: symbols.BackendVariable},
		{Name: "home.html", Kind: symbols.TemplateName},
		{Name: "items", Kind: symbols.BackendVariable},
	}, summarize(res))
}

func TestTemplateCallAllowList(t *testing.T) {
	src := `fn f() { load("not_a_template.html"); }`
	res := extract(t, syntax.BackendRust, src)
	assert.Empty(t, res.Bindings)

	res = extract(t, syntax.BackendRust, src, backend.WithTemplateCalls("load"))
	require.Len(t, res.Templates, 1)
	assert.Equal(t, "not_a_template.html", res.Templates[0].Name)
}
