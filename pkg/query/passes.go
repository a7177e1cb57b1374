package query

import (
	"github.com/walteh/jinjals/pkg/syntax/jinja"
)

// Roles produced by the template passes.
const (
	RoleExpression = "expression"
	RoleOpen       = "open"
	RoleClose      = "close"
	RoleIdentifier = "identifier"
	RoleDot        = "dot"
	RolePipe       = "pipe"

	RoleStatement  = "statement"
	RoleDefinition = "definition"
	RoleScopeEnd   = "scope_end"
	RoleKeyword    = "keyword"
	RoleID         = "id"
	RoleEquals     = "equals"
	RoleOperator   = "operator"
	RoleString     = "string"
	RoleError      = "error"
)

// Pass selects the pattern set of one template extraction pass.
type Pass int

const (
	PassObjects Pass = iota
	PassDefinitions
)

func (p Pass) String() string {
	switch p {
	case PassObjects:
		return "objects"
	case PassDefinitions:
		return "definitions"
	}
	return "unknown"
}

func (p Pass) Patterns() *PatternSet {
	switch p {
	case PassDefinitions:
		return definitionPatterns
	default:
		return objectPatterns
	}
}

var (
	actions    = []string{jinja.KindExpression, jinja.KindStatement}
	statements = []string{jinja.KindStatement}

	objectPatterns = MustCompile(
		Pattern{Role: RoleExpression, Kinds: actions},
		Pattern{Role: RoleOpen, Kinds: []string{jinja.KindExpressionBegin, jinja.KindStatementBegin}},
		Pattern{Role: RoleClose, Kinds: []string{jinja.KindExpressionEnd, jinja.KindStatementEnd}},
		Pattern{Role: RoleIdentifier, Kinds: []string{jinja.KindIdentifier}},
		Pattern{Role: RoleDot, Kinds: []string{jinja.KindOperator}, Text: `\.`},
		Pattern{Role: RolePipe, Kinds: []string{jinja.KindOperator}, Text: `\|`},
	)

	definitionPatterns = MustCompile(
		Pattern{Role: RoleStatement, Kinds: statements},
		Pattern{Role: RoleError, Kinds: []string{jinja.KindError}},
		Pattern{Role: RoleScopeEnd, Kinds: []string{jinja.KindKeyword}, Parents: statements, Leading: true, Text: `end\w+`},
		Pattern{Role: RoleDefinition, Kinds: []string{jinja.KindKeyword}, Parents: statements, Leading: true},
		Pattern{Role: RoleKeyword, Kinds: []string{jinja.KindKeyword}, Parents: statements},
		Pattern{Role: RoleID, Kinds: []string{jinja.KindIdentifier, jinja.KindKeywordArgument}, Parents: statements},
		Pattern{Role: RoleEquals, Kinds: []string{jinja.KindOperator}, Parents: statements, Text: `=`},
		Pattern{Role: RoleOperator, Kinds: []string{jinja.KindOperator}, Parents: statements},
		Pattern{Role: RoleString, Kinds: []string{jinja.KindString}, Parents: statements},
	)
)
