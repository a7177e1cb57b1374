// Package jinja is an error tolerant grammar for Jinja templates.
//
// Tokenizing is done with a stateful participle lexer. Every state ends in a
// catch-all rule, so lexing never fails; malformed input becomes error nodes
// when the tree is built.
package jinja

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	LexerRules = lexer.Rules{
		"Root": {
			// raw blocks are opaque and never enter the Code state
			{"Raw", `\{%-?\s*raw\s*-?%\}(?s:.*?)\{%-?\s*endraw\s*-?%\}`, nil},
			{"CommentOpen", `\{#-?`, lexer.Push("Comment")},
			{"ExprOpen", `\{\{-?`, lexer.Push("Code")},
			{"StmtOpen", `\{%-?`, lexer.Push("Code")},
			{"Text", `[^{]+`, nil},
			{"Brace", `\{`, nil},
		},
		"Comment": {
			{"CommentClose", `-?#\}`, lexer.Pop()},
			{"CommentText", `[^#-]+|[#-]`, nil},
		},
		"Code": {
			{"Whitespace", `\s+`, nil},
			{"ExprClose", `-?\}\}`, lexer.Pop()},
			{"StmtClose", `-?%\}`, lexer.Pop()},
			// an opener inside code means the previous tag was never closed
			{"NestedOpen", `\{[{%]-?`, nil},
			{"String", `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`, nil},
			{"Number", `\d+(?:\.\d+)?`, nil},
			{"Ident", `[A-Za-z_][A-Za-z0-9_]*`, nil},
			{"Operator", `==|!=|<=|>=|//|\*\*|[-+*/%~<>=|.,:()\[\]{}!?]`, nil},
			{"Unknown", `.`, nil},
		},
	}

	Lexer = lexer.MustStateful(LexerRules)
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokRaw
	tokCommentOpen
	tokExprOpen
	tokStmtOpen
	tokText
	tokBrace
	tokCommentClose
	tokCommentText
	tokWhitespace
	tokExprClose
	tokStmtClose
	tokNestedOpen
	tokString
	tokNumber
	tokIdent
	tokOperator
	tokUnknown
)

var tokenTypes = func() map[lexer.TokenType]tokenType {
	names := map[string]tokenType{
		"EOF":          tokEOF,
		"Raw":          tokRaw,
		"CommentOpen":  tokCommentOpen,
		"ExprOpen":     tokExprOpen,
		"StmtOpen":     tokStmtOpen,
		"Text":         tokText,
		"Brace":        tokBrace,
		"CommentClose": tokCommentClose,
		"CommentText":  tokCommentText,
		"Whitespace":   tokWhitespace,
		"ExprClose":    tokExprClose,
		"StmtClose":    tokStmtClose,
		"NestedOpen":   tokNestedOpen,
		"String":       tokString,
		"Number":       tokNumber,
		"Ident":        tokIdent,
		"Operator":     tokOperator,
		"Unknown":      tokUnknown,
	}
	out := map[lexer.TokenType]tokenType{}
	for name, typ := range Lexer.Symbols() {
		if t, ok := names[name]; ok {
			out[typ] = t
		}
	}
	return out
}()

type token struct {
	typ    tokenType
	value  string
	offset int
}

func (t token) end() int {
	return t.offset + len(t.value)
}

// lex tokenizes src, which must start in the Root state. Offsets are shifted by base.
func lex(src string, base int) []token {
	l, err := Lexer.LexString("", src)
	if err != nil {
		return []token{{typ: tokUnknown, value: src, offset: base}}
	}
	toks, err := lexer.ConsumeAll(l)
	if err != nil {
		return []token{{typ: tokUnknown, value: src, offset: base}}
	}
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		typ, ok := tokenTypes[t.Type]
		if !ok || typ == tokEOF {
			continue
		}
		out = append(out, token{typ: typ, value: t.Value, offset: t.Pos.Offset + base})
	}
	return out
}
