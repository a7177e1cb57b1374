// Package index keeps the analysis of every known file as immutable
// snapshots. Each file has a single writer goroutine; readers never lock.
package index

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/backend"
	"github.com/walteh/jinjals/pkg/document"
	"github.com/walteh/jinjals/pkg/expr"
	"github.com/walteh/jinjals/pkg/query"
	"github.com/walteh/jinjals/pkg/scope"
	"github.com/walteh/jinjals/pkg/symbols"
	"github.com/walteh/jinjals/pkg/syntax"
)

var (
	ErrClosed     = errors.New("index closed")
	ErrNotIndexed = errors.New("file not indexed")
)

// Origin records who owns a file's contents.
type Origin int

const (
	// Disk contents come from the filesystem and may be replaced by the watcher.
	Disk Origin = iota
	// Editor contents come from an open buffer; disk updates are ignored.
	Editor
)

// FileState is one analyzed version of a file. It is never modified after
// it is published.
type FileState struct {
	URI      string
	Origin   Origin
	Document *document.Document
	// Tree is nil when the last parse failed.
	Tree *syntax.Tree
	Err  error

	Bindings []symbols.Binding
	Imports  []symbols.Import
	Scopes   []scope.Scope
	Objects  []expr.Object
	// Aborted is set when a syntax error cut the definition pass short.
	Aborted bool

	// Templates are the template names referenced from a backend file.
	Templates []symbols.Name
}

func (f *FileState) Kind() syntax.LanguageKind {
	return f.Document.Kind
}

func (f *FileState) Version() int32 {
	return f.Document.Version
}

// Change opens or updates a file. Text replaces the whole buffer when set;
// otherwise Changes are applied in order to the current version.
type Change struct {
	URI     string
	Kind    syntax.LanguageKind
	Version int32
	Origin  Origin
	Text    *string
	Changes []document.Change
}

type Index struct {
	store     *syntax.Store
	extractor *backend.Extractor

	files sync.Map // uri -> *FileState

	mu      sync.Mutex
	writers map[string]*writer
	closed  bool
	wg      sync.WaitGroup
}

// New creates an index that parses through store and extracts backend
// bindings with extractor. The caller keeps ownership of both.
func New(store *syntax.Store, extractor *backend.Extractor) *Index {
	return &Index{
		store:     store,
		extractor: extractor,
		writers:   map[string]*writer{},
	}
}

type op int

const (
	opApply op = iota
	opDetach
)

type request struct {
	ctx    context.Context
	op     op
	change Change
	reply  chan reply
}

type reply struct {
	state *FileState
	err   error
}

type writer struct {
	requests chan request
	quit     chan struct{}
	exited   chan struct{}
}

func (ix *Index) writerFor(uri string) (*writer, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return nil, ErrClosed
	}
	if w, ok := ix.writers[uri]; ok {
		return w, nil
	}
	w := &writer{
		requests: make(chan request),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	ix.writers[uri] = w
	ix.wg.Add(1)
	go ix.run(uri, w)
	return w, nil
}

func (ix *Index) run(uri string, w *writer) {
	defer ix.wg.Done()
	defer close(w.exited)

	for {
		select {
		case <-w.quit:
			return
		case req := <-w.requests:
			state, err := ix.handle(req.ctx, uri, req)
			req.reply <- reply{state: state, err: err}
		}
	}
}

func (ix *Index) send(ctx context.Context, uri string, req request) (*FileState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := ix.writerFor(uri)
	if err != nil {
		return nil, err
	}
	req.ctx = ctx
	req.reply = make(chan reply, 1)

	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.state, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Apply opens or updates a file and returns the snapshot it produced.
func (ix *Index) Apply(ctx context.Context, ch Change) (*FileState, error) {
	ch.URI = document.NormalizeURI(ch.URI)
	return ix.send(ctx, ch.URI, request{op: opApply, change: ch})
}

// Detach hands an editor-owned file back to the filesystem, typically when
// the editor closes it.
func (ix *Index) Detach(ctx context.Context, uri string) (*FileState, error) {
	uri = document.NormalizeURI(uri)
	return ix.send(ctx, uri, request{op: opDetach})
}

func (ix *Index) handle(ctx context.Context, uri string, req request) (*FileState, error) {
	prev, _ := ix.Get(uri)

	if req.op == opDetach {
		if prev == nil {
			return nil, errors.Errorf("detaching %s: %w", uri, ErrNotIndexed)
		}
		next := *prev
		next.Origin = Disk
		ix.files.Store(uri, &next)
		return &next, nil
	}

	ch := req.change
	if prev != nil && prev.Origin == Editor && ch.Origin == Disk {
		zerolog.Ctx(ctx).Trace().Str("uri", uri).Msg("ignoring disk update of an open file")
		return prev, nil
	}

	var (
		doc     *document.Document
		tree    *syntax.Tree
		err     error
		parsed  = prev != nil && prev.Tree != nil
		applied int
	)

	switch {
	case ch.Text != nil:
		doc = document.New(uri, ch.Kind, ch.Version, []byte(*ch.Text))
		tree, err = ix.store.Parse(ctx, uri, doc.Kind, doc.Text(), nil)
	case prev == nil:
		return nil, errors.Errorf("updating %s: %w", uri, ErrNotIndexed)
	default:
		doc = prev.Document
		tree = prev.Tree
		for _, c := range ch.Changes {
			next, edit := doc.Apply(ch.Version, c)
			if !parsed {
				edit = nil
			}
			tree, err = ix.store.Parse(ctx, uri, doc.Kind, next.Text(), edit)
			doc = next
			parsed = err == nil
			applied++
		}
		if applied == 0 {
			doc = document.New(uri, doc.Kind, ch.Version, doc.Text())
		}
	}

	state := &FileState{URI: uri, Origin: ch.Origin, Document: doc}
	if err != nil {
		state.Err = err
		ix.files.Store(uri, state)
		return state, errors.Errorf("analyzing %s: %w", uri, err)
	}

	state.Tree = tree
	ix.analyze(ctx, state)
	ix.files.Store(uri, state)

	zerolog.Ctx(ctx).Debug().
		Str("uri", uri).
		Int32("version", doc.Version).
		Stringer("kind", doc.Kind).
		Int("bindings", len(state.Bindings)).
		Msg("indexed")
	return state, nil
}

func (ix *Index) analyze(ctx context.Context, state *FileState) {
	switch state.Tree.Kind {
	case syntax.Template:
		tmpl := state.Tree.Template
		eof := state.Document.Lines().End()
		res := scope.Build(query.PassDefinitions.Patterns().Run(tmpl, query.Options{CaptureAll: true}), eof)
		state.Bindings = res.Bindings
		state.Imports = res.Imports
		state.Scopes = res.Scopes
		state.Aborted = res.Aborted
		state.Objects = expr.Resolve(query.PassObjects.Patterns().Run(tmpl, query.Options{CaptureAll: true})).Objects()
	case syntax.Backend:
		res := ix.extractor.Extract(ctx, state.Tree.Backend, state.Document.Text())
		state.Bindings = res.Bindings
		state.Templates = res.Templates
	}
}

// Get returns the current snapshot of a file.
func (ix *Index) Get(uri string) (*FileState, bool) {
	v, ok := ix.files.Load(document.NormalizeURI(uri))
	if !ok {
		return nil, false
	}
	return v.(*FileState), true
}

// All returns the current snapshot of every file, sorted by URI.
func (ix *Index) All() []*FileState {
	var out []*FileState
	ix.files.Range(func(_, v any) bool {
		out = append(out, v.(*FileState))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Remove stops the file's writer and forgets the file.
func (ix *Index) Remove(ctx context.Context, uri string) {
	uri = document.NormalizeURI(uri)

	ix.mu.Lock()
	w := ix.writers[uri]
	delete(ix.writers, uri)
	ix.mu.Unlock()

	if w != nil {
		close(w.quit)
		<-w.exited
	}
	ix.files.Delete(uri)
	ix.store.Remove(uri)
	zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("removed from index")
}

// Close stops every writer. Snapshots stay readable; updates fail with ErrClosed.
func (ix *Index) Close() {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return
	}
	ix.closed = true
	writers := ix.writers
	ix.writers = map[string]*writer{}
	ix.mu.Unlock()

	for _, w := range writers {
		close(w.quit)
	}
	ix.wg.Wait()
}
