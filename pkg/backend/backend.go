// Package backend finds the names backend code exposes to templates and the
// templates it renders.
package backend

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/query"
	"github.com/walteh/jinjals/pkg/syntax"
	"github.com/walteh/jinjals/pkg/syntax/jinja"
	"github.com/walteh/jinjals/pkg/symbols"
)

const DefaultSentinel = "jinja"

// DefaultTemplateCalls are the functions and methods whose first string
// argument names a template.
var DefaultTemplateCalls = []string{"render_jinja", "get_template", "render_template"}

var registrationMethods = map[string]bool{
	"add_global":   true,
	"add_filter":   true,
	"add_function": true,
	"add_test":     true,
}

type Extractor struct {
	lang          syntax.BackendLanguage
	patterns      *query.TreeSitterPatterns
	sentinel      string
	templateCalls map[string]bool
}

type Option func(*Extractor)

// WithSentinel sets the object name registrations are called on.
func WithSentinel(name string) Option {
	return func(e *Extractor) {
		if name != "" {
			e.sentinel = name
		}
	}
}

func WithTemplateCalls(names ...string) Option {
	return func(e *Extractor) {
		if len(names) == 0 {
			return
		}
		e.templateCalls = map[string]bool{}
		for _, n := range names {
			e.templateCalls[n] = true
		}
	}
}

func NewExtractor(lang syntax.BackendLanguage, opts ...Option) (*Extractor, error) {
	src := rustQuery
	if lang == syntax.BackendPython {
		src = pythonQuery
	}
	patterns, err := query.CompileTreeSitter(lang, src)
	if err != nil {
		return nil, errors.Errorf("compiling %s backend patterns: %w", lang, err)
	}
	e := &Extractor{lang: lang, patterns: patterns, sentinel: DefaultSentinel}
	WithTemplateCalls(DefaultTemplateCalls...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Extractor) Language() syntax.BackendLanguage {
	return e.lang
}

func (e *Extractor) Close() {
	e.patterns.Close()
}

type Result struct {
	Bindings []symbols.Binding
	// Templates are the template names the file renders. Each also appears
	// in Bindings as a TemplateName.
	Templates []symbols.Name
}

type extraction struct {
	src    []byte
	root   *tree_sitter.Node
	eof    position.Point
	seen   map[uint64]bool
	result Result
}

func (x *extraction) node(c query.Capture) *tree_sitter.Node {
	return x.root.DescendantForByteRange(uint(c.StartByte), uint(c.EndByte))
}

func (x *extraction) bind(b symbols.Binding, key uint64) {
	if x.seen[key] {
		return
	}
	x.seen[key] = true
	b.ValidUntil = x.eof
	x.result.Bindings = append(x.result.Bindings, b)
	if b.Kind == symbols.TemplateName {
		x.result.Templates = append(x.result.Templates, symbols.Name{Name: b.Name, Range: b.Range})
	}
}

// Extract runs the context, template call and registration searches.
func (e *Extractor) Extract(ctx context.Context, tree *syntax.BackendTree, src []byte) Result {
	x := &extraction{
		src:  src,
		root: tree.RootNode(),
		eof:  position.NewLineIndex(src).End(),
		seen: map[uint64]bool{},
	}

	var match map[string]query.Capture
	current := -1
	flush := func() {
		if match != nil {
			e.handle(x, match)
		}
	}
	for c := range e.patterns.Run(tree, src, query.Options{CaptureAll: true}) {
		if c.Match != current {
			flush()
			current = c.Match
			match = map[string]query.Capture{}
		}
		match[c.Role] = c
	}
	flush()

	zerolog.Ctx(ctx).Trace().Int("bindings", len(x.result.Bindings)).Str("language", string(e.lang)).Msg("extracted backend bindings")
	return x.result
}

func (e *Extractor) handle(x *extraction, m map[string]query.Capture) {
	if tree, ok := m["context.tree"]; ok && m["context.macro"].Text == "context" {
		e.contextMacro(x, tree)
	}
	if dict, ok := m["context.dict"]; ok && m["context.name"].Text == "context" {
		e.contextDict(x, dict)
	}
	if args, ok := m["call.args"]; ok && e.templateCalls[m["call.name"].Text] {
		e.templateCall(x, args)
	}
	if args, ok := m["register.args"]; ok && m["register.object"].Text == e.sentinel && registrationMethods[m["register.method"].Text] {
		e.registration(x, args)
	}
}

// contextMacro binds the keys of context!(key => value, shorthand, ...).
func (e *Extractor) contextMacro(x *extraction, c query.Capture) {
	tt := x.node(c)
	if tt == nil {
		return
	}
	n := int(tt.ChildCount())
	for i := 0; i < n; i++ {
		child := tt.Child(uint(i))
		if child == nil || child.Kind() != "identifier" {
			continue
		}
		prev := child.PrevSibling()
		if prev == nil || !isOneOf(prev.Kind(), "(", "{", "[", ",") {
			continue
		}
		next := child.NextSibling()
		if next != nil && !isOneOf(next.Kind(), "=>", ",", ")", "}", "]") {
			continue
		}
		x.bind(symbols.Binding{
			Name:  child.Utf8Text(x.src),
			Kind:  symbols.BackendVariable,
			Range: syntax.NodeRange(child),
		}, nodeKey(child))
	}
}

// contextDict binds the string keys of context = {"key": value}.
func (e *Extractor) contextDict(x *extraction, c query.Capture) {
	dict := x.node(c)
	if dict == nil {
		return
	}
	n := int(dict.NamedChildCount())
	for i := 0; i < n; i++ {
		pair := dict.NamedChild(uint(i))
		if pair == nil || pair.Kind() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		if key == nil || key.Kind() != "string" {
			continue
		}
		x.bind(symbols.Binding{
			Name:  unquote(key.Utf8Text(x.src)),
			Kind:  symbols.BackendVariable,
			Range: syntax.NodeRange(key),
		}, nodeKey(key))
	}
}

func (e *Extractor) templateCall(x *extraction, c query.Capture) {
	args := x.node(c)
	if args == nil {
		return
	}
	strs, kwargs := arguments(args)
	if len(strs) > 0 {
		x.bind(symbols.Binding{
			Name:  unquote(strs[0].Utf8Text(x.src)),
			Kind:  symbols.TemplateName,
			Range: syntax.NodeRange(strs[0]),
		}, nodeKey(strs[0]))
	}
	for _, kw := range kwargs {
		x.bind(symbols.Binding{
			Name:  kw.Utf8Text(x.src),
			Kind:  symbols.BackendVariable,
			Range: syntax.NodeRange(kw),
		}, nodeKey(kw))
	}
}

// registration binds jinja.add_global("a.b", "description").
func (e *Extractor) registration(x *extraction, c query.Capture) {
	args := x.node(c)
	if args == nil {
		return
	}
	strs, _ := arguments(args)
	if len(strs) == 0 {
		return
	}
	name := unquote(strs[0].Utf8Text(x.src))
	if name == "" {
		return
	}
	b := symbols.Binding{
		Name:   name,
		Kind:   symbols.BackendVariable,
		Range:  syntax.NodeRange(strs[0]),
		Fields: strings.Split(name, "."),
	}
	if len(strs) > 1 {
		b.Description = unquote(strs[1].Utf8Text(x.src))
	}
	x.bind(b, nodeKey(strs[0]))
}

// arguments returns the string literal arguments and keyword argument names in order.
func arguments(args *tree_sitter.Node) (strs []*tree_sitter.Node, kwargs []*tree_sitter.Node) {
	n := int(args.NamedChildCount())
	for i := 0; i < n; i++ {
		arg := args.NamedChild(uint(i))
		if arg == nil {
			continue
		}
		switch arg.Kind() {
		case "string_literal", "raw_string_literal", "string":
			strs = append(strs, arg)
		case "keyword_argument":
			if name := arg.ChildByFieldName("name"); name != nil {
				kwargs = append(kwargs, name)
			}
		}
	}
	return strs, kwargs
}

func nodeKey(n *tree_sitter.Node) uint64 {
	return jinja.NodeKey(n.Kind(), int(n.StartByte()), int(n.EndByte()))
}

func isOneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

// unquote strips string prefixes, raw string hashes and quotes.
func unquote(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	s = strings.Trim(s, "#")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
