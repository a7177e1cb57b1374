// Package syntax keeps the current syntax tree of every open file for the
// template grammar and the configured backend grammar.
package syntax

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/syntax/jinja"
)

var ErrParseFailure = errors.New("parse failure")

type LanguageKind int

const (
	Template LanguageKind = iota
	Backend
)

func (k LanguageKind) String() string {
	if k == Backend {
		return "backend"
	}
	return "template"
}

// Tree is one immutable version of a file's syntax tree. Exactly one of
// Template or Backend is set, depending on Kind.
type Tree struct {
	Kind     LanguageKind
	Source   []byte
	Template *jinja.Tree
	Backend  *BackendTree
}

type key struct {
	file string
	kind LanguageKind
}

type Store struct {
	trees sync.Map // key -> *Tree

	mu      sync.RWMutex
	backend *backendGrammar
}

func NewStore(lang BackendLanguage) (*Store, error) {
	g, err := newBackendGrammar(lang)
	if err != nil {
		return nil, errors.Errorf("creating backend grammar: %w", err)
	}
	return &Store{backend: g}, nil
}

// SetBackend swaps the backend grammar. Existing backend trees are kept but
// are no longer used as incremental input.
func (s *Store) SetBackend(lang BackendLanguage) error {
	s.mu.RLock()
	same := s.backend.name == lang
	s.mu.RUnlock()
	if same {
		return nil
	}

	g, err := newBackendGrammar(lang)
	if err != nil {
		return errors.Errorf("creating backend grammar: %w", err)
	}
	s.mu.Lock()
	old := s.backend
	s.backend = g
	s.mu.Unlock()
	old.close()
	return nil
}

func (s *Store) BackendLanguage() BackendLanguage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.name
}

// Parse produces and records the new tree for (file, kind). When edit is
// non-nil and a previous tree exists, the previous tree is used as
// incremental input.
func (s *Store) Parse(ctx context.Context, file string, kind LanguageKind, text []byte, edit *position.Edit) (*Tree, error) {
	prev, _ := s.Tree(file, kind)

	var tree *Tree
	switch kind {
	case Template:
		var t *jinja.Tree
		if prev != nil && edit != nil {
			t = prev.Template.Reparse(text, *edit)
		} else {
			t = jinja.Parse(text)
		}
		tree = &Tree{Kind: kind, Source: text, Template: t}
	case Backend:
		var old *BackendTree
		if prev != nil {
			old = prev.Backend
		}
		s.mu.RLock()
		g := s.backend
		s.mu.RUnlock()
		bt, err := g.parse(text, old, edit)
		if err != nil {
			return nil, errors.Errorf("parsing %s: %w", file, err)
		}
		tree = &Tree{Kind: kind, Source: text, Backend: bt}
	default:
		return nil, errors.Errorf("unknown language kind %d", kind)
	}

	zerolog.Ctx(ctx).Trace().Str("file", file).Stringer("kind", kind).Bool("incremental", prev != nil && edit != nil).Msg("parsed")

	s.trees.Store(key{file, kind}, tree)
	return tree, nil
}

func (s *Store) Tree(file string, kind LanguageKind) (*Tree, bool) {
	v, ok := s.trees.Load(key{file, kind})
	if !ok {
		return nil, false
	}
	return v.(*Tree), true
}

func (s *Store) Remove(file string) {
	s.trees.Delete(key{file, Template})
	s.trees.Delete(key{file, Backend})
}

func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.close()
}
