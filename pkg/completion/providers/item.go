// Package providers turns filters and bindings into completion items.
package providers

import "github.com/walteh/jinjals/pkg/position"

type Kind string

const (
	KindFilter   Kind = "filter"
	KindVariable Kind = "variable"
	KindFunction Kind = "function"
	KindModule   Kind = "module"
)

type CompletionItem struct {
	Label         string `json:"label"`
	Kind          Kind   `json:"kind"`
	Detail        string `json:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	// InsertText replaces Range when Range is set, otherwise it is inserted at the point.
	InsertText string          `json:"insertText,omitempty"`
	Range      *position.Range `json:"range,omitempty"`
}
