package syntax

import (
	"runtime"
	"sync"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/position"
)

type BackendLanguage string

const (
	BackendRust   BackendLanguage = "rust"
	BackendPython BackendLanguage = "python"
)

func (l BackendLanguage) Valid() bool {
	return l == BackendRust || l == BackendPython
}

// FileExtension is the extension of source files written in the language.
func (l BackendLanguage) FileExtension() string {
	switch l {
	case BackendPython:
		return ".py"
	default:
		return ".rs"
	}
}

func (l BackendLanguage) Language() (*tree_sitter.Language, error) {
	switch l {
	case BackendRust:
		return tree_sitter.NewLanguage(tree_sitter_rust.Language()), nil
	case BackendPython:
		return tree_sitter.NewLanguage(tree_sitter_python.Language()), nil
	}
	return nil, errors.Errorf("unsupported backend language %q", l)
}

// BackendTree owns a tree-sitter tree. It is released once nothing references it.
type BackendTree struct {
	Language BackendLanguage
	tree     *tree_sitter.Tree
}

func newBackendTree(lang BackendLanguage, tree *tree_sitter.Tree) *BackendTree {
	bt := &BackendTree{Language: lang, tree: tree}
	runtime.SetFinalizer(bt, func(bt *BackendTree) { bt.tree.Close() })
	return bt
}

func (bt *BackendTree) RootNode() *tree_sitter.Node {
	return bt.tree.RootNode()
}

type backendGrammar struct {
	mu     sync.Mutex
	name   BackendLanguage
	lang   *tree_sitter.Language
	parser *tree_sitter.Parser
}

func newBackendGrammar(name BackendLanguage) (*backendGrammar, error) {
	lang, err := name.Language()
	if err != nil {
		return nil, err
	}
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		parser.Close()
		return nil, errors.Errorf("setting %s language: %w", name, err)
	}
	return &backendGrammar{name: name, lang: lang, parser: parser}, nil
}

func (g *backendGrammar) parse(text []byte, prev *BackendTree, edit *position.Edit) (*BackendTree, error) {
	if !utf8.Valid(text) {
		return nil, errors.Errorf("parsing %s: %w", g.name, ErrParseFailure)
	}

	var old *tree_sitter.Tree
	if prev != nil && edit != nil && prev.Language == g.name {
		// edit a copy so readers of prev keep a consistent tree
		old = prev.tree.Clone()
		defer old.Close()
		old.Edit(&tree_sitter.InputEdit{
			StartByte:      uint(edit.StartByte),
			OldEndByte:     uint(edit.OldEndByte),
			NewEndByte:     uint(edit.NewEndByte),
			StartPosition:  toTSPoint(edit.StartPoint),
			OldEndPosition: toTSPoint(edit.OldEndPoint),
			NewEndPosition: toTSPoint(edit.NewEndPoint),
		})
	}

	g.mu.Lock()
	tree := g.parser.Parse(text, old)
	g.mu.Unlock()

	if tree == nil {
		return nil, errors.Errorf("parsing %s: %w", g.name, ErrParseFailure)
	}
	return newBackendTree(g.name, tree), nil
}

func (g *backendGrammar) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parser.Close()
}

func toTSPoint(p position.Point) tree_sitter.Point {
	return tree_sitter.Point{Row: uint(p.Row), Column: uint(p.Column)}
}

func FromTSPoint(p tree_sitter.Point) position.Point {
	return position.Point{Row: int(p.Row), Column: int(p.Column)}
}

func NodeRange(n *tree_sitter.Node) position.Range {
	return position.Range{Start: FromTSPoint(n.StartPosition()), End: FromTSPoint(n.EndPosition())}
}
