// Package scope derives scoped variable bindings from template statements.
//
// The builder is a state machine fed with definition pass captures in
// document order. Each statement gets its own phase; statements that open a
// block push a frame that is popped by the matching end tag.
package scope

import (
	"iter"
	"strings"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/query"
	"github.com/walteh/jinjals/pkg/symbols"
)

// Scope is the region opened by a block statement.
type Scope struct {
	ID        uint64
	Construct string
	Start     position.Point
	End       position.Point
	// Closed is false when the end tag was never found and End fell back to end of file.
	Closed bool
}

type Result struct {
	Bindings []symbols.Binding
	Imports  []symbols.Import
	Scopes   []Scope
	// Aborted is set when a syntax error stopped the pass early.
	Aborted bool
}

const rootScope uint64 = 0

type phase int

const (
	phaseIgnore phase = iota
	phaseForTargets
	phaseSetTarget
	phaseSetValue
	phaseWithTargets
	phaseWithValue
	phaseMacroName
	phaseMacroParams
	phaseMacroDefault
	phaseBlockName
	phaseTemplateRef
	phaseImportNames
)

var blockConstructs = map[string]bool{
	"for": true, "with": true, "macro": true, "block": true, "if": true,
	"filter": true, "autoescape": true, "call": true,
}

type pendingBinding struct {
	binding symbols.Binding
	// own bindings belong to the scope the statement opens
	own bool
}

type statement struct {
	key       uint64
	rng       position.Range
	construct string
	phase     phase
	depth     int
	targets   int
	sawEquals bool
	afterDot  bool
	bindings  []pendingBinding
	imp       *symbols.Import
}

func (s *statement) bind(name string, kind symbols.Kind, rng position.Range, own bool) {
	s.bindings = append(s.bindings, pendingBinding{
		binding: symbols.Binding{Name: name, Kind: kind, Range: rng},
		own:     own,
	})
}

func (s *statement) opensScope() bool {
	if s.construct == "set" {
		return !s.sawEquals
	}
	return blockConstructs[s.construct]
}

type frame struct {
	id        uint64
	construct string
	start     position.Point
}

type ownedBinding struct {
	binding symbols.Binding
	owner   uint64
}

type builder struct {
	stack    []frame
	scopes   []Scope
	closed   map[uint64]position.Point
	seen     map[uint64]bool
	cur      *statement
	bindings []ownedBinding
	imports  []symbols.Import
	aborted  bool
}

// Build consumes definition pass captures. eof is the fallback validity end
// for bindings whose scope is never closed.
func Build(captures iter.Seq[query.Capture], eof position.Point) Result {
	b := &builder{
		stack:  []frame{{id: rootScope}},
		closed: map[uint64]position.Point{},
		seen:   map[uint64]bool{},
	}
	for c := range captures {
		if !b.feed(c) {
			break
		}
	}
	if !b.aborted {
		b.commit()
	}
	return b.result(eof)
}

func (b *builder) feed(c query.Capture) bool {
	switch c.Role {
	case query.RoleError:
		b.aborted = true
		b.cur = nil
		return false
	case query.RoleStatement:
		b.commit()
		if b.seen[c.Key] {
			return true
		}
		b.seen[c.Key] = true
		b.cur = &statement{key: c.Key, rng: c.Range}
		return true
	}

	s := b.cur
	if s == nil {
		return true
	}

	switch c.Role {
	case query.RoleDefinition:
		b.define(s, c)
	case query.RoleScopeEnd:
		b.closeScope(strings.TrimPrefix(c.Text, "end"), s.rng.Start)
		s.phase = phaseIgnore
	case query.RoleKeyword:
		b.keyword(s, c)
	case query.RoleID:
		b.id(s, c)
	case query.RoleEquals:
		b.equals(s)
	case query.RoleOperator:
		b.operator(s, c)
	case query.RoleString:
		if s.phase == phaseTemplateRef {
			name := unquote(c.Text)
			s.bind(name, symbols.TemplateName, c.Range, false)
			s.imp.Templates = append(s.imp.Templates, symbols.Name{Name: name, Range: c.Range})
		}
	}
	return true
}

func (b *builder) define(s *statement, c query.Capture) {
	s.construct = c.Text
	switch c.Text {
	case "for":
		s.phase = phaseForTargets
	case "set":
		s.phase = phaseSetTarget
	case "with":
		s.phase = phaseWithTargets
	case "macro":
		s.phase = phaseMacroName
	case "block":
		s.phase = phaseBlockName
	case "extends":
		s.phase = phaseTemplateRef
		s.imp = &symbols.Import{Kind: symbols.Extends}
	case "include":
		s.phase = phaseTemplateRef
		s.imp = &symbols.Import{Kind: symbols.Include}
	case "import":
		s.phase = phaseTemplateRef
		s.imp = &symbols.Import{Kind: symbols.ImportStatement}
	case "from":
		s.phase = phaseTemplateRef
		s.imp = &symbols.Import{Kind: symbols.From}
	default:
		s.phase = phaseIgnore
	}
}

func (b *builder) keyword(s *statement, c query.Capture) {
	switch {
	case s.phase == phaseForTargets && c.Text == "in":
		s.phase = phaseIgnore
	case s.phase == phaseTemplateRef && (c.Text == "import" || c.Text == "as"):
		if s.imp.Kind == symbols.From || s.imp.Kind == symbols.ImportStatement {
			s.phase = phaseImportNames
		}
	case s.phase == phaseTemplateRef:
		// ignore missing, with context and friends
		s.phase = phaseIgnore
	}
}

func (b *builder) id(s *statement, c query.Capture) {
	switch s.phase {
	case phaseForTargets:
		s.targets++
		kind := symbols.LoopValue
		switch s.targets {
		case 1:
			kind = symbols.LoopKey
		case 3:
			kind = symbols.LoopCount
		}
		s.bind(c.Text, kind, c.Range, true)
	case phaseSetTarget:
		if s.afterDot {
			s.afterDot = false
			return
		}
		s.bind(c.Text, symbols.SetVariable, c.Range, false)
	case phaseWithTargets:
		if s.depth == 0 {
			s.bind(c.Text, symbols.WithVariable, c.Range, true)
		}
	case phaseMacroName:
		s.bind(c.Text, symbols.MacroName, c.Range, false)
		s.phase = phaseMacroParams
	case phaseMacroParams:
		if s.depth == 1 {
			s.bind(c.Text, symbols.MacroParameter, c.Range, true)
		}
	case phaseBlockName:
		s.bind(c.Text, symbols.TemplateBlock, c.Range, false)
		s.phase = phaseIgnore
	case phaseImportNames:
		s.bind(c.Text, symbols.ImportedName, c.Range, false)
		s.imp.Names = append(s.imp.Names, symbols.Name{Name: c.Text, Range: c.Range})
	}
}

func (b *builder) equals(s *statement) {
	switch {
	case s.phase == phaseSetTarget:
		s.sawEquals = true
		s.phase = phaseSetValue
	case s.phase == phaseWithTargets && s.depth == 0:
		s.phase = phaseWithValue
	case s.phase == phaseMacroParams && s.depth == 1:
		s.phase = phaseMacroDefault
	}
}

func (b *builder) operator(s *statement, c query.Capture) {
	switch c.Text {
	case "(", "[", "{":
		s.depth++
	case ")", "]", "}":
		s.depth = max(0, s.depth-1)
		if (s.phase == phaseMacroParams || s.phase == phaseMacroDefault) && s.depth == 0 {
			s.phase = phaseIgnore
		}
	case ",":
		switch {
		case s.phase == phaseWithValue && s.depth == 0:
			s.phase = phaseWithTargets
		case s.phase == phaseMacroDefault && s.depth == 1:
			s.phase = phaseMacroParams
		}
	case ".":
		if s.phase == phaseSetTarget {
			s.afterDot = true
		}
	}
}

// commit records the current statement's bindings and opens its scope.
func (b *builder) commit() {
	s := b.cur
	b.cur = nil
	if s == nil {
		return
	}

	enclosing := b.stack[len(b.stack)-1].id
	for _, pb := range s.bindings {
		owner := enclosing
		if pb.own {
			owner = s.key
		}
		b.bindings = append(b.bindings, ownedBinding{binding: pb.binding, owner: owner})
	}
	if s.imp != nil {
		b.imports = append(b.imports, *s.imp)
	}
	if s.opensScope() {
		b.stack = append(b.stack, frame{id: s.key, construct: s.construct, start: s.rng.End})
	}
}

// closeScope pops up to the innermost frame of the construct. Frames above it
// were never closed and keep the end of file fallback.
func (b *builder) closeScope(construct string, at position.Point) {
	for i := len(b.stack) - 1; i > 0; i-- {
		f := b.stack[i]
		if f.construct != construct {
			continue
		}
		for _, open := range b.stack[i+1:] {
			b.scopes = append(b.scopes, Scope{ID: open.id, Construct: open.construct, Start: open.start})
		}
		b.closed[f.id] = at
		b.scopes = append(b.scopes, Scope{ID: f.id, Construct: f.construct, Start: f.start, End: at, Closed: true})
		b.stack = b.stack[:i]
		return
	}
}

// result resolves every binding's validity end, falling back to eof.
func (b *builder) result(eof position.Point) Result {
	for _, open := range b.stack[1:] {
		b.scopes = append(b.scopes, Scope{ID: open.id, Construct: open.construct, Start: open.start})
	}

	res := Result{Imports: b.imports, Aborted: b.aborted}
	for _, sc := range b.scopes {
		if !sc.Closed {
			sc.End = eof
		}
		res.Scopes = append(res.Scopes, sc)
	}
	for _, ob := range b.bindings {
		bd := ob.binding
		bd.ValidUntil = eof
		if end, ok := b.closed[ob.owner]; ok && ob.owner != rootScope {
			bd.ValidUntil = end
		}
		res.Bindings = append(res.Bindings, bd)
	}
	return res
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return strings.Trim(s, `"'`)
}
