package query

import (
	"iter"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/syntax"
	"github.com/walteh/jinjals/pkg/syntax/jinja"
)

// TreeSitterPatterns is a compiled tree-sitter query. Capture names are the roles.
type TreeSitterPatterns struct {
	query *tree_sitter.Query
	names []string
}

func CompileTreeSitter(lang syntax.BackendLanguage, source string) (*TreeSitterPatterns, error) {
	language, err := lang.Language()
	if err != nil {
		return nil, err
	}
	q, qerr := tree_sitter.NewQuery(language, source)
	// NewQuery returns a typed *QueryError, compare the pointer itself
	if qerr != nil {
		return nil, errors.Errorf("compiling %s query: %s", lang, qerr.Error())
	}
	return &TreeSitterPatterns{query: q, names: q.CaptureNames()}, nil
}

func MustCompileTreeSitter(lang syntax.BackendLanguage, source string) *TreeSitterPatterns {
	ps, err := CompileTreeSitter(lang, source)
	if err != nil {
		panic(err)
	}
	return ps
}

// Run yields the captures of every match in match order. Captures whose text
// is not valid UTF-8 are skipped.
func (ps *TreeSitterPatterns) Run(tree *syntax.BackendTree, source []byte, opts Options) iter.Seq[Capture] {
	return func(yield func(Capture) bool) {
		cursor := tree_sitter.NewQueryCursor()
		defer cursor.Close()

		matches := cursor.Matches(ps.query, tree.RootNode(), source)
		for m, id := matches.Next(), 0; m != nil; m, id = matches.Next(), id+1 {
			for _, c := range m.Captures {
				node := c.Node
				start := syntax.FromTSPoint(node.StartPosition())
				if !opts.keep(start) {
					continue
				}
				text := node.Utf8Text(source)
				if !utf8.ValidString(text) {
					continue
				}
				capture := Capture{
					Role:      ps.names[c.Index],
					Text:      text,
					Kind:      node.Kind(),
					Range:     syntax.NodeRange(&node),
					StartByte: int(node.StartByte()),
					EndByte:   int(node.EndByte()),
					Key:       jinja.NodeKey(node.Kind(), int(node.StartByte()), int(node.EndByte())),
					Missing:   node.IsMissing(),
					Match:     id,
				}
				if !yield(capture) {
					return
				}
			}
		}
	}
}

func (ps *TreeSitterPatterns) Close() {
	ps.query.Close()
}
