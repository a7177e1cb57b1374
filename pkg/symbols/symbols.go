// Package symbols holds the bindings and references extracted from templates
// and backend sources.
package symbols

import (
	"slices"
	"strings"

	"github.com/walteh/jinjals/pkg/position"
)

type Kind int

const (
	Undefined Kind = iota
	LoopKey
	LoopValue
	LoopCount
	SetVariable
	WithVariable
	MacroName
	MacroParameter
	TemplateBlock
	BackendVariable
	TemplateName
	ImportedName
)

var kindNames = map[Kind]string{
	Undefined:       "undefined",
	LoopKey:         "loop key",
	LoopValue:       "loop value",
	LoopCount:       "loop counter",
	SetVariable:     "variable",
	WithVariable:    "with variable",
	MacroName:       "macro",
	MacroParameter:  "macro parameter",
	TemplateBlock:   "block",
	BackendVariable: "backend variable",
	TemplateName:    "template",
	ImportedName:    "imported name",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Description is the hover text used when no override exists.
func (k Kind) Description() string {
	switch k {
	case LoopKey, LoopValue, LoopCount:
		return "Loop " + strings.TrimPrefix(k.String(), "loop ") + " defined by a `for` statement."
	case SetVariable:
		return "Variable assigned with `set`."
	case WithVariable:
		return "Variable scoped to a `with` block."
	case MacroName:
		return "Macro."
	case MacroParameter:
		return "Macro parameter."
	case TemplateBlock:
		return "Template block."
	case BackendVariable:
		return "Variable provided by backend code."
	case TemplateName:
		return "Template reference."
	case ImportedName:
		return "Name imported from another template."
	}
	return "Undefined."
}

// Binding is a named definition with the point where it stops being visible.
type Binding struct {
	Name       string
	Kind       Kind
	Range      position.Range
	ValidUntil position.Point
	// Fields is the dotted path of backend registrations such as "user.email".
	Fields []string
	// Description overrides Kind.Description when set.
	Description string
}

// Path is the dotted path the binding answers to.
func (b Binding) Path() []string {
	if len(b.Fields) > 0 {
		return b.Fields
	}
	return []string{b.Name}
}

func (b Binding) Matches(chain []string) bool {
	return slices.Equal(b.Path(), chain)
}

// VisibleAt reports whether p is between the definition start and the validity end.
func (b Binding) VisibleAt(p position.Point) bool {
	return !p.Before(b.Range.Start) && !p.After(b.ValidUntil)
}

func (b Binding) Describe() string {
	if b.Description != "" {
		return b.Description
	}
	return b.Kind.Description()
}

type ImportKind int

const (
	Extends ImportKind = iota
	Include
	From
	ImportStatement
)

func (k ImportKind) String() string {
	switch k {
	case Extends:
		return "extends"
	case Include:
		return "include"
	case From:
		return "from"
	}
	return "import"
}

type Name struct {
	Name  string
	Range position.Range
}

// Import is an extends, include, from or import statement.
type Import struct {
	Kind      ImportKind
	Templates []Name
	Names     []Name
}

// Descriptions supplies hover text for dotted names.
type Descriptions interface {
	Description(path []string) (string, bool)
}

// DescribeWith prefers a configured description, then the binding's own.
func (b Binding) DescribeWith(d Descriptions) string {
	if d != nil {
		if desc, ok := d.Description(b.Path()); ok {
			return desc
		}
	}
	return b.Describe()
}
