// Package query runs structural patterns over syntax trees and yields role
// labelled captures in document order.
package query

import (
	"iter"
	"regexp"
	"slices"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/syntax/jinja"
)

// Capture is one labelled node from a query run.
type Capture struct {
	Role      string
	Text      string
	Kind      string
	Range     position.Range
	StartByte int
	EndByte   int
	Key       uint64
	Missing   bool
	// Match groups captures produced by the same tree-sitter match.
	Match int
}

type Options struct {
	Trigger position.Point
	// CaptureAll disables the trigger cut-off.
	CaptureAll bool
}

func (o Options) keep(start position.Point) bool {
	return o.CaptureAll || !start.After(o.Trigger)
}

// Pattern matches template nodes by kind, parent kind and text.
type Pattern struct {
	Role    string
	Kinds   []string
	Parents []string
	// Text is an anchored regular expression applied to the node text.
	Text string
	// Leading requires the node to directly follow its parent's opening delimiter.
	Leading bool
}

type compiledPattern struct {
	Pattern
	text *regexp.Regexp
}

// PatternSet is an ordered list of patterns. For each node the first
// matching pattern wins.
type PatternSet struct {
	patterns []compiledPattern
}

func Compile(patterns ...Pattern) (*PatternSet, error) {
	ps := &PatternSet{}
	for _, p := range patterns {
		if p.Role == "" {
			return nil, errors.Errorf("pattern without a role: %+v", p)
		}
		if len(p.Kinds) == 0 {
			return nil, errors.Errorf("pattern %q matches no node kinds", p.Role)
		}
		for _, k := range append(slices.Clone(p.Kinds), p.Parents...) {
			if !slices.Contains(jinja.Kinds, k) {
				return nil, errors.Errorf("pattern %q: unknown node kind %q", p.Role, k)
			}
		}
		cp := compiledPattern{Pattern: p}
		if p.Text != "" {
			re, err := regexp.Compile(`^(?:` + p.Text + `)$`)
			if err != nil {
				return nil, errors.Errorf("compiling pattern %q: %w", p.Role, err)
			}
			cp.text = re
		}
		ps.patterns = append(ps.patterns, cp)
	}
	return ps, nil
}

func MustCompile(patterns ...Pattern) *PatternSet {
	ps, err := Compile(patterns...)
	if err != nil {
		panic(err)
	}
	return ps
}

func (ps *PatternSet) match(n, parent *jinja.Node, src []byte) (string, bool) {
	for _, p := range ps.patterns {
		if !slices.Contains(p.Kinds, n.Kind) {
			continue
		}
		if len(p.Parents) > 0 && (parent == nil || !slices.Contains(p.Parents, parent.Kind)) {
			continue
		}
		if p.Leading && (parent == nil || len(parent.Children) < 2 || parent.Children[1] != n) {
			continue
		}
		if p.text != nil && !p.text.MatchString(n.Text(src)) {
			continue
		}
		return p.Role, true
	}
	return "", false
}

// Run walks the tree in pre-order. Unless CaptureAll is set the walk stops at
// the first node that starts after the trigger point. When that node belongs
// to a tag that was never closed, the tag's missing end delimiter is still
// captured before stopping.
func (ps *PatternSet) Run(tree *jinja.Tree, opts Options) iter.Seq[Capture] {
	return func(yield func(Capture) bool) {
		tree.Root.Walk(func(n, parent *jinja.Node) bool {
			if !opts.keep(n.Start) {
				if end := missingEnd(parent); end != nil {
					if role, ok := ps.match(end, parent, tree.Source); ok {
						yield(capture(role, end, tree.Source))
					}
				}
				return false
			}
			role, ok := ps.match(n, parent, tree.Source)
			if !ok {
				return true
			}
			return yield(capture(role, n, tree.Source))
		})
	}
}

func capture(role string, n *jinja.Node, src []byte) Capture {
	return Capture{
		Role:      role,
		Text:      n.Text(src),
		Kind:      n.Kind,
		Range:     n.Range(),
		StartByte: n.StartByte,
		EndByte:   n.EndByte,
		Key:       n.Key(),
		Missing:   n.Missing,
	}
}

func missingEnd(n *jinja.Node) *jinja.Node {
	if n == nil || (n.Kind != jinja.KindExpression && n.Kind != jinja.KindStatement) || len(n.Children) == 0 {
		return nil
	}
	if end := n.Children[len(n.Children)-1]; end.Missing {
		return end
	}
	return nil
}

// Collect drains a capture stream.
func Collect(seq iter.Seq[Capture]) []Capture {
	return slices.Collect(seq)
}
