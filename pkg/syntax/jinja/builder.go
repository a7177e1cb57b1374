package jinja

import (
	"slices"

	"github.com/walteh/jinjals/pkg/position"
)

var statementKeywords = map[string]bool{
	"for": true, "endfor": true, "set": true, "endset": true, "with": true, "endwith": true,
	"macro": true, "endmacro": true, "block": true, "endblock": true, "if": true, "elif": true,
	"else": true, "endif": true, "filter": true, "endfilter": true, "autoescape": true,
	"endautoescape": true, "raw": true, "endraw": true, "extends": true, "include": true,
	"import": true, "from": true, "call": true, "endcall": true, "do": true, "break": true,
	"continue": true, "trans": true, "endtrans": true, "pluralize": true,
}

var expressionKeywords = map[string]bool{
	"in": true, "not": true, "and": true, "or": true, "is": true, "if": true, "else": true,
}

type builder struct {
	src   []byte
	lines *position.LineIndex
	toks  []token
	i     int
}

func (b *builder) node(kind string, start, end int) *Node {
	return &Node{
		Kind:      kind,
		StartByte: start,
		EndByte:   end,
		Start:     b.lines.Point(start),
		End:       b.lines.Point(end),
	}
}

func (b *builder) build() *Node {
	root := b.node(KindSourceFile, 0, len(b.src))
	for b.i < len(b.toks) {
		tok := b.toks[b.i]
		switch tok.typ {
		case tokText, tokBrace:
			start, end := tok.offset, tok.end()
			b.i++
			for b.i < len(b.toks) && (b.toks[b.i].typ == tokText || b.toks[b.i].typ == tokBrace) {
				end = b.toks[b.i].end()
				b.i++
			}
			root.Children = append(root.Children, b.node(KindText, start, end))
		case tokRaw:
			root.Children = append(root.Children, b.node(KindRawBlock, tok.offset, tok.end()))
			b.i++
		case tokCommentOpen:
			root.Children = append(root.Children, b.comment())
		case tokExprOpen, tokStmtOpen:
			root.Children = append(root.Children, b.action(tok.value[1] == '%'))
		case tokNestedOpen:
			root.Children = append(root.Children, b.action(tok.value[1] == '%'))
		default:
			root.Children = append(root.Children, b.node(KindError, tok.offset, tok.end()))
			b.i++
		}
	}
	return root
}

func (b *builder) comment() *Node {
	start := b.toks[b.i].offset
	end := b.toks[b.i].end()
	b.i++
	for b.i < len(b.toks) {
		tok := b.toks[b.i]
		if tok.typ != tokCommentText && tok.typ != tokCommentClose {
			break
		}
		end = tok.end()
		b.i++
		if tok.typ == tokCommentClose {
			break
		}
	}
	return b.node(KindComment, start, end)
}

// action builds an expression or statement node starting at the opener under b.i.
func (b *builder) action(statement bool) *Node {
	kind, beginKind, endKind, closer := KindExpression, KindExpressionBegin, KindExpressionEnd, tokExprClose
	if statement {
		kind, beginKind, endKind, closer = KindStatement, KindStatementBegin, KindStatementEnd, tokStmtClose
	}

	open := b.toks[b.i]
	b.i++
	n := b.node(kind, open.offset, open.end())
	n.Children = append(n.Children, b.node(beginKind, open.offset, open.end()))

	var inner []token
	var end *Node
	for end == nil {
		if b.i >= len(b.toks) {
			end = b.node(endKind, len(b.src), len(b.src))
			end.Missing = true
			break
		}
		tok := b.toks[b.i]
		switch tok.typ {
		case tokWhitespace:
			b.i++
		case tokExprClose, tokStmtClose:
			b.i++
			if tok.typ == closer {
				end = b.node(endKind, tok.offset, tok.end())
			} else {
				inner = append(inner, token{typ: tokUnknown, value: tok.value, offset: tok.offset})
				end = b.node(endKind, tok.end(), tok.end())
				end.Missing = true
			}
		case tokNestedOpen, tokExprOpen, tokStmtOpen, tokCommentOpen, tokRaw, tokText, tokBrace:
			// leave the opener for the caller
			end = b.node(endKind, tok.offset, tok.offset)
			end.Missing = true
		default:
			inner = append(inner, tok)
			b.i++
		}
	}

	n.Children = append(n.Children, b.classify(inner, statement)...)
	n.Children = append(n.Children, end)
	n.EndByte, n.End = end.EndByte, end.End
	return n
}

func (b *builder) classify(inner []token, statement bool) []*Node {
	out := make([]*Node, 0, len(inner))
	kinds := make([]string, 0, len(inner))
	depth := 0
	statementKeyword := ""
	for j, tok := range inner {
		kind := KindError
		switch tok.typ {
		case tokString:
			kind = KindString
		case tokNumber:
			kind = KindNumber
		case tokOperator:
			kind = KindOperator
			switch tok.value {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth = max(0, depth-1)
			}
		case tokIdent:
			kind = b.classifyIdent(inner, kinds, j, statement, statementKeyword, depth)
			if j == 0 && kind == KindKeyword {
				statementKeyword = tok.value
			}
		}
		kinds = append(kinds, kind)
		out = append(out, b.node(kind, tok.offset, tok.end()))
	}
	return out
}

func (b *builder) classifyIdent(inner []token, kinds []string, j int, statement bool, statementKeyword string, depth int) string {
	word := inner[j].value
	switch {
	case statement && j == 0 && statementKeywords[word]:
		return KindKeyword
	case expressionKeywords[word]:
		return KindKeyword
	case statement && depth == 0 && j > 0 && modifier(inner, kinds, j, statementKeyword):
		return KindKeyword
	case statementKeyword == "filter" && j == 1:
		return KindFilterName
	}

	if j > 0 && inner[j-1].typ == tokIdent {
		prev := inner[j-1].value
		if prev == "is" || (prev == "not" && j > 1 && inner[j-2].value == "is") {
			return KindTest
		}
	}

	if depth > 0 && j+1 < len(inner) && inner[j+1].typ == tokOperator && inner[j+1].value == "=" {
		return KindKeywordArgument
	}
	return KindIdentifier
}

// modifier reports whether inner[j] is one of the words that are only
// reserved in a fixed position of a statement, such as the ignore missing of
// an include. Anywhere else these words are plain names.
func modifier(inner []token, kinds []string, j int, statementKeyword string) bool {
	word := inner[j].value
	next := func(want string) bool {
		return j+1 < len(inner) && inner[j+1].typ == tokIdent && inner[j+1].value == want
	}
	prevKeyword := func(want ...string) bool {
		return kinds[j-1] == KindKeyword && slices.Contains(want, inner[j-1].value)
	}
	importing := statementKeyword == "include" || statementKeyword == "import" || statementKeyword == "from"

	switch word {
	case "with", "without":
		return importing && j >= 2 && next("context")
	case "context":
		return importing && prevKeyword("with", "without")
	case "ignore":
		return statementKeyword == "include" && j >= 2 && next("missing")
	case "missing":
		return statementKeyword == "include" && prevKeyword("ignore")
	case "import":
		return statementKeyword == "from" && j >= 2 && !slices.Contains(keywordsBefore(inner, kinds, j), "import")
	case "as":
		switch statementKeyword {
		case "import":
			return j >= 2 && !slices.Contains(keywordsBefore(inner, kinds, j), "as")
		case "from":
			return kinds[j-1] == KindIdentifier && slices.Contains(keywordsBefore(inner, kinds, j), "import")
		}
	case "scoped", "required":
		return statementKeyword == "block" && j >= 2
	case "recursive":
		return statementKeyword == "for" && j == len(inner)-1 && !prevKeyword("in") &&
			slices.Contains(keywordsBefore(inner, kinds, j), "in")
	}
	return false
}

func keywordsBefore(inner []token, kinds []string, j int) []string {
	var out []string
	for i := range j {
		if kinds[i] == KindKeyword {
			out = append(out, inner[i].value)
		}
	}
	return out
}
