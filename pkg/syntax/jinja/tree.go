package jinja

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/walteh/jinjals/pkg/position"
)

const (
	KindSourceFile      = "source_file"
	KindText            = "text"
	KindComment         = "comment"
	KindRawBlock        = "raw_block"
	KindExpression      = "expression"
	KindStatement       = "statement"
	KindExpressionBegin = "expression_begin"
	KindExpressionEnd   = "expression_end"
	KindStatementBegin  = "statement_begin"
	KindStatementEnd    = "statement_end"
	KindKeyword         = "keyword"
	KindIdentifier      = "identifier"
	KindKeywordArgument = "keyword_argument"
	KindTest            = "test"
	KindFilterName      = "filter_name"
	KindOperator        = "operator"
	KindString          = "string"
	KindNumber          = "number"
	KindError           = "error"
)

// Kinds lists every node kind the grammar produces.
var Kinds = []string{
	KindSourceFile, KindText, KindComment, KindRawBlock, KindExpression, KindStatement,
	KindExpressionBegin, KindExpressionEnd, KindStatementBegin, KindStatementEnd,
	KindKeyword, KindIdentifier, KindKeywordArgument, KindTest, KindFilterName,
	KindOperator, KindString, KindNumber, KindError,
}

// Node is an immutable syntax node. Children are in document order.
type Node struct {
	Kind      string
	StartByte int
	EndByte   int
	Start     position.Point
	End       position.Point
	// Missing marks a zero-width closing delimiter that the source never wrote.
	Missing  bool
	Children []*Node
}

func (n *Node) Range() position.Range {
	return position.Range{Start: n.Start, End: n.End}
}

func (n *Node) Text(src []byte) string {
	return string(src[n.StartByte:n.EndByte])
}

// Key is stable for a given kind and byte range.
func (n *Node) Key() uint64 {
	return NodeKey(n.Kind, n.StartByte, n.EndByte)
}

// NodeKey hashes a node kind and byte range. Backend nodes use it too.
func NodeKey(kind string, start, end int) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(kind)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(strconv.Itoa(start))
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(strconv.Itoa(end))
	return h.Sum64()
}

// Walk visits nodes in pre-order until fn returns false.
func (n *Node) Walk(fn func(node, parent *Node) bool) bool {
	return n.walk(nil, fn)
}

func (n *Node) walk(parent *Node, fn func(node, parent *Node) bool) bool {
	if !fn(n, parent) {
		return false
	}
	for _, c := range n.Children {
		if !c.walk(n, fn) {
			return false
		}
	}
	return true
}

// Tree is one immutable parse of a template.
type Tree struct {
	Root   *Node
	Source []byte
	Lines  *position.LineIndex
	tokens []token
}

func (t *Tree) HasError() bool {
	found := false
	t.Root.Walk(func(n, _ *Node) bool {
		if n.Kind == KindError {
			found = true
		}
		return !found
	})
	return found
}

// Parse builds a tree for the whole source.
func Parse(src []byte) *Tree {
	return newTree(src, lex(string(src), 0))
}

// Reparse relexes src starting at the last stable Root state token before the
// edit and reuses the tokens in front of it.
func (t *Tree) Reparse(src []byte, edit position.Edit) *Tree {
	cut := -1
	for i, tok := range t.tokens {
		if tok.offset > edit.StartByte {
			break
		}
		if tok.typ == tokStmtOpen && isRawOpen(t.tokens[i+1:]) {
			// an unterminated raw block can swallow everything after it once closed
			break
		}
		if isRootToken(tok.typ) && (i == 0 || t.tokens[i-1].typ != tokBrace) {
			cut = i
		}
	}
	if cut <= 0 {
		return Parse(src)
	}
	start := t.tokens[cut].offset
	toks := make([]token, 0, len(t.tokens))
	toks = append(toks, t.tokens[:cut]...)
	toks = append(toks, lex(string(src[start:]), start)...)
	return newTree(src, toks)
}

func isRootToken(typ tokenType) bool {
	switch typ {
	case tokRaw, tokCommentOpen, tokExprOpen, tokStmtOpen, tokText:
		return true
	}
	return false
}

func isRawOpen(rest []token) bool {
	for _, tok := range rest {
		if tok.typ == tokWhitespace {
			continue
		}
		return tok.typ == tokIdent && tok.value == "raw"
	}
	return false
}

func newTree(src []byte, toks []token) *Tree {
	b := &builder{src: src, lines: position.NewLineIndex(src), toks: toks}
	return &Tree{Root: b.build(), Source: src, Lines: b.lines, tokens: toks}
}
