// Package expr turns object pass captures into object expressions and decides
// what kind of completion or hover applies at a point.
package expr

import (
	"iter"
	"strings"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/query"
)

// Reserved words are never user identifiers.
var Reserved = map[string]bool{
	"loop": true, "true": true, "false": true, "True": true, "False": true, "none": true,
	"None": true, "not": true, "as": true, "module": true, "super": true, "caller": true,
	"self": true, "varargs": true, "kwargs": true, "range": true, "dict": true,
	"lipsum": true, "cycler": true, "joiner": true, "namespace": true,
}

type Field struct {
	Name  string
	Range position.Range
}

// Object is an identifier with the fields accessed on it, such as user.email.
type Object struct {
	Field
	Fields   []Field
	IsFilter bool
}

// Segments returns the base identifier followed by its fields.
func (o Object) Segments() []Field {
	return append([]Field{o.Field}, o.Fields...)
}

func (o Object) Chain() []string {
	out := make([]string, 0, len(o.Fields)+1)
	for _, s := range o.Segments() {
		out = append(out, s.Name)
	}
	return out
}

func (o Object) Last() Field {
	if len(o.Fields) > 0 {
		return o.Fields[len(o.Fields)-1]
	}
	return o.Field
}

func (o Object) FullRange() position.Range {
	return position.Range{Start: o.Range.Start, End: o.Last().Range.End}
}

// SegmentAt returns the index of the segment touched by p.
func (o Object) SegmentAt(p position.Point) (int, bool) {
	segs := o.Segments()
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i].Range.Touches(p) {
			return i, true
		}
	}
	return 0, false
}

type CompletionKind int

const (
	NoCompletion CompletionKind = iota
	FilterCompletion
	IdentifierCompletion
	IncompleteIdentifierCompletion
)

func (k CompletionKind) String() string {
	switch k {
	case FilterCompletion:
		return "filter"
	case IdentifierCompletion:
		return "identifier"
	case IncompleteIdentifierCompletion:
		return "incomplete identifier"
	}
	return "none"
}

type Completion struct {
	Kind CompletionKind
	// Prefix is the part of the identifier before the point.
	Prefix string
	// Range covers the dotted path an accepted item replaces.
	Range position.Range
	// Autoclose is set when the enclosing expression has no closing delimiter.
	Autoclose bool
	// Closer is the delimiter that closes the enclosing expression, "}}" or "%}".
	Closer string
}

type span struct {
	start position.Point
	end   position.Point
	// open spans extend until something else is captured
	open bool
}

func (s span) touches(p position.Point) bool {
	if p.Before(s.start) {
		return false
	}
	return s.open || !p.After(s.end)
}

type Resolver struct {
	objects []Object

	dotEnd   position.Point
	hasDot   bool
	reserved bool

	pipe        span
	hasPipe     bool
	pipePending bool

	inExpr    bool
	expr      span
	autoclose bool
	closer    string

	lastIdent    position.Point
	hasLastIdent bool
}

// Resolve feeds every capture of seq into a new resolver.
func Resolve(seq iter.Seq[query.Capture]) *Resolver {
	r := &Resolver{}
	for c := range seq {
		r.Feed(c)
	}
	return r
}

func (r *Resolver) Feed(c query.Capture) {
	switch c.Role {
	case query.RoleExpression:
		r.inExpr = true
		r.expr = span{start: c.Range.Start, end: c.Range.End, open: true}
		r.autoclose = false
		r.hasDot = false
	case query.RoleOpen:
		r.expr.start = c.Range.End
		r.closer = "}}"
		if strings.HasPrefix(c.Text, "{%") {
			r.closer = "%}"
		}
	case query.RoleClose:
		r.expr.end = c.Range.Start
		r.expr.open = false
		r.autoclose = c.Missing || c.Range.Empty()
		r.hasDot = false
		if r.pipePending {
			r.pipe.end = c.Range.Start
			r.pipe.open = false
			r.pipePending = false
		}
	case query.RoleDot:
		r.dotEnd = c.Range.End
		r.hasDot = true
	case query.RolePipe:
		r.pipe = span{start: c.Range.Start, end: c.Range.End, open: true}
		r.hasPipe = true
		r.pipePending = true
		r.hasDot = false
	case query.RoleIdentifier:
		r.identifier(c)
	}
}

func (r *Resolver) identifier(c query.Capture) {
	abuts := r.hasDot && c.Range.Start == r.dotEnd
	r.hasDot = false
	r.lastIdent = c.Range.End
	r.hasLastIdent = true

	if abuts {
		if !r.reserved && len(r.objects) > 0 {
			last := &r.objects[len(r.objects)-1]
			last.Fields = append(last.Fields, Field{Name: c.Text, Range: c.Range})
		}
		return
	}

	r.reserved = Reserved[c.Text]
	if r.reserved {
		return
	}

	obj := Object{Field: Field{Name: c.Text, Range: c.Range}, IsFilter: r.pipePending}
	if r.pipePending {
		r.pipe.end = c.Range.End
		r.pipe.open = false
		r.pipePending = false
	}
	r.objects = append(r.objects, obj)
}

func (r *Resolver) Objects() []Object {
	return r.objects
}

// CompletionAt decides the completion kind at p. Captures must have been
// produced with p as the trigger point.
func (r *Resolver) CompletionAt(p position.Point) Completion {
	out := Completion{Autoclose: r.inExpr && r.autoclose}
	if out.Autoclose {
		out.Closer = r.closer
	}

	if r.hasPipe && r.pipe.touches(p) {
		out.Kind = FilterCompletion
		return out
	}

	if r.inExpr && r.expr.touches(p) {
		if !r.hasLastIdent || p.After(r.lastIdent) {
			out.Kind = IdentifierCompletion
			return out
		}
		if r.expr.start == r.expr.end && r.expr.start == p {
			out.Kind = IdentifierCompletion
			return out
		}
	}

	for i := len(r.objects) - 1; i >= 0; i-- {
		obj := r.objects[i]
		idx, ok := obj.SegmentAt(p)
		if !ok {
			continue
		}
		seg := obj.Segments()[idx]
		out.Kind = IncompleteIdentifierCompletion
		out.Prefix = prefix(seg, p)
		out.Range = obj.FullRange()
		return out
	}

	return out
}

// prefix keeps name[0 .. len - (end.col - point.col)].
func prefix(seg Field, p position.Point) string {
	if p.Row != seg.Range.End.Row {
		return seg.Name
	}
	n := len(seg.Name) - (seg.Range.End.Column - p.Column)
	return seg.Name[:max(0, min(n, len(seg.Name)))]
}

// ObjectAt returns the object with a segment touched by p and the segment index.
func (r *Resolver) ObjectAt(p position.Point) (Object, int, bool) {
	return Find(r.objects, p)
}

// IsFilterAt reports whether p is on the name of a filter.
func (r *Resolver) IsFilterAt(p position.Point) (Object, bool) {
	return FilterAt(r.objects, p)
}

// Find returns the last object with a segment touched by p.
func Find(objects []Object, p position.Point) (Object, int, bool) {
	for i := len(objects) - 1; i >= 0; i-- {
		if idx, ok := objects[i].SegmentAt(p); ok {
			return objects[i], idx, true
		}
	}
	return Object{}, 0, false
}

func FilterAt(objects []Object, p position.Point) (Object, bool) {
	obj, _, ok := Find(objects, p)
	if !ok || !obj.IsFilter {
		return Object{}, false
	}
	return obj, obj.Last().Range.Touches(p)
}
