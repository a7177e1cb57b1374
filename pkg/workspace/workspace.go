// Package workspace ties configuration, parsing, the index and the query
// operations together for one workspace root.
package workspace

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/jinjals/pkg/backend"
	"github.com/walteh/jinjals/pkg/builtins"
	"github.com/walteh/jinjals/pkg/completion"
	"github.com/walteh/jinjals/pkg/completion/providers"
	"github.com/walteh/jinjals/pkg/config"
	"github.com/walteh/jinjals/pkg/definition"
	"github.com/walteh/jinjals/pkg/diagnostic"
	"github.com/walteh/jinjals/pkg/document"
	"github.com/walteh/jinjals/pkg/finder"
	"github.com/walteh/jinjals/pkg/hover"
	"github.com/walteh/jinjals/pkg/index"
	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/syntax"
)

var ErrUnsupported = errors.New("unsupported file type")

// generation is everything rebuilt by Reset.
type generation struct {
	store       *syntax.Store
	extractor   *backend.Extractor
	index       *index.Index
	completer   *completion.Completer
	hoverer     *hover.Hoverer
	definitions *definition.Resolver
	diagnostics *diagnostic.Generator
}

func (g *generation) close() {
	g.index.Close()
	g.extractor.Close()
	g.store.Close()
}

type Workspace struct {
	fs        afero.Fs
	cfg       *config.Config
	finder    *finder.DefaultFinder
	catalogue *builtins.Catalogue

	// document operations hold the read lock so Reset can swap generations
	// without losing an edit
	mu     sync.RWMutex
	gen    *generation
	closed bool
}

// New creates a workspace for a resolved configuration. Nothing is read from
// disk until Load or Reset.
func New(fs afero.Fs, cfg *config.Config) (*Workspace, error) {
	catalogue, err := builtins.Load()
	if err != nil {
		return nil, err
	}
	w := &Workspace{
		fs:        fs,
		cfg:       cfg.Clone(),
		finder:    finder.NewDefaultFinder(fs),
		catalogue: catalogue,
	}
	w.gen, err = w.newGeneration()
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workspace) newGeneration() (*generation, error) {
	lang := w.cfg.BackendLanguage()
	store, err := syntax.NewStore(lang)
	if err != nil {
		return nil, errors.Errorf("creating syntax store: %w", err)
	}
	ex, err := backend.NewExtractor(lang, w.cfg.ExtractorOptions()...)
	if err != nil {
		store.Close()
		return nil, errors.Errorf("creating backend extractor: %w", err)
	}
	ix := index.New(store, ex)
	defs := definition.NewResolver(ix, w.fs, w.cfg.Templates)
	return &generation{
		store:       store,
		extractor:   ex,
		index:       ix,
		completer:   completion.NewCompleter(ix, w.catalogue, w.cfg),
		hoverer:     hover.NewHoverer(ix, defs, w.catalogue, w.cfg),
		definitions: defs,
		diagnostics: diagnostic.NewGenerator(ix, w.fs, w.cfg.Templates),
	}, nil
}

func (w *Workspace) current() *generation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gen
}

func (w *Workspace) Config() *config.Config {
	return w.cfg
}

func (w *Workspace) Index() *index.Index {
	return w.current().index
}

// Kind maps a path to the grammar that analyzes it.
func (w *Workspace) Kind(uri string) (syntax.LanguageKind, bool) {
	return document.KindForPath(document.NormalizeURI(uri), w.cfg.BackendLanguage())
}

func (w *Workspace) apply(ctx context.Context, ch index.Change) (*index.FileState, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gen.index.Apply(ctx, ch)
}

func (w *Workspace) OpenDocument(ctx context.Context, uri string, version int32, text string) (*index.FileState, error) {
	kind, ok := w.Kind(uri)
	if !ok {
		return nil, errors.Errorf("opening %s: %w", uri, ErrUnsupported)
	}
	return w.apply(ctx, index.Change{URI: uri, Kind: kind, Version: version, Origin: index.Editor, Text: &text})
}

// ChangeDocument applies the editor's content changes in order.
func (w *Workspace) ChangeDocument(ctx context.Context, uri string, version int32, changes []document.Change) (*index.FileState, error) {
	kind, ok := w.Kind(uri)
	if !ok {
		return nil, errors.Errorf("changing %s: %w", uri, ErrUnsupported)
	}
	return w.apply(ctx, index.Change{URI: uri, Kind: kind, Version: version, Origin: index.Editor, Changes: changes})
}

// SaveDocument reindexes the saved text when the editor sends it.
func (w *Workspace) SaveDocument(ctx context.Context, uri string, text *string) (*index.FileState, error) {
	state, ok := w.Index().Get(uri)
	if !ok {
		return nil, errors.Errorf("saving %s: %w", uri, index.ErrNotIndexed)
	}
	if text == nil {
		return state, nil
	}
	return w.apply(ctx, index.Change{URI: uri, Kind: state.Kind(), Version: state.Version(), Origin: index.Editor, Text: text})
}

// CloseDocument keeps the file indexed but lets disk updates replace it again.
func (w *Workspace) CloseDocument(ctx context.Context, uri string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, err := w.gen.index.Detach(ctx, uri)
	return err
}

// Lines returns the line index of a file's current text.
func (w *Workspace) Lines(uri string) (*position.LineIndex, bool) {
	state, ok := w.Index().Get(uri)
	if !ok {
		return nil, false
	}
	return state.Document.Lines(), true
}

func (w *Workspace) Complete(ctx context.Context, uri string, p position.Point) []providers.CompletionItem {
	return w.current().completer.Complete(ctx, uri, p)
}

func (w *Workspace) Hover(ctx context.Context, uri string, p position.Point) (*hover.HoverInfo, bool) {
	return w.current().hoverer.Hover(ctx, uri, p)
}

func (w *Workspace) Definition(ctx context.Context, uri string, p position.Point) []definition.Location {
	return w.current().definitions.Goto(ctx, uri, p)
}

// Diagnose returns the report of one file. ok is false when the file is not
// indexed or failed to parse.
func (w *Workspace) Diagnose(ctx context.Context, uri string) (diagnostic.Report, bool) {
	g := w.current()
	state, ok := g.index.Get(uri)
	if !ok {
		return diagnostic.Report{}, false
	}
	diags, ok := g.diagnostics.Generate(ctx, state.URI)
	if !ok {
		return diagnostic.Report{}, false
	}
	return diagnostic.Report{URI: state.URI, Lines: state.Document.Lines(), Diagnostics: diags}, true
}

// Reports returns the report of every indexed file, sorted by URI.
func (w *Workspace) Reports(ctx context.Context) []diagnostic.Report {
	var out []diagnostic.Report
	for _, state := range w.Index().All() {
		if rep, ok := w.Diagnose(ctx, state.URI); ok {
			out = append(out, rep)
		}
	}
	return out
}

// roots returns each directory to walk with the extensions found there.
func (w *Workspace) roots() map[string][]string {
	out := map[string][]string{}
	if w.cfg.Templates != "" {
		out[w.cfg.Templates] = append(out[w.cfg.Templates], document.TemplateExtensions...)
	}
	if ext := w.cfg.BackendLanguage().FileExtension(); ext != "" {
		for _, dir := range w.cfg.Backend {
			out[dir] = append(out[dir], ext)
		}
	}
	return out
}

// Load walks the configured roots and indexes every file found. Files that
// cannot be read or parsed are logged and skipped; their errors are returned
// together.
func (w *Workspace) Load(ctx context.Context) error {
	return w.load(ctx, w.current())
}

func (w *Workspace) load(ctx context.Context, g *generation) error {
	var errs error
	seen := map[string]bool{}
	var files []string
	for dir, exts := range w.roots() {
		found, err := w.finder.Find(ctx, dir, exts)
		if err != nil {
			multierr.AppendInto(&errs, err)
			continue
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}

	var (
		eg errgroup.Group
		mu sync.Mutex
	)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for _, path := range files {
		eg.Go(func() error {
			if err := w.loadFile(ctx, g, path); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("skipping file")
				mu.Lock()
				multierr.AppendInto(&errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	zerolog.Ctx(ctx).Info().Int("files", len(files)).Int("errors", len(multierr.Errors(errs))).Msg("workspace loaded")
	return errs
}

func (w *Workspace) loadFile(ctx context.Context, g *generation, path string) error {
	kind, ok := document.KindForPath(path, w.cfg.BackendLanguage())
	if !ok {
		return errors.Errorf("loading %s: %w", path, ErrUnsupported)
	}
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return errors.Errorf("reading %s: %w", path, err)
	}
	text := string(data)
	_, err = g.index.Apply(ctx, index.Change{URI: path, Kind: kind, Origin: index.Disk, Text: &text})
	return err
}

// Reset rebuilds the analysis from scratch: roots are walked again into a new
// index, open documents are carried over, and the old index is closed. The
// returned URIs were indexed before the reset and are gone after it.
func (w *Workspace) Reset(ctx context.Context) ([]string, error) {
	next, err := w.newGeneration()
	if err != nil {
		return nil, err
	}
	errs := w.load(ctx, next)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		next.close()
		return nil, index.ErrClosed
	}
	prev := w.gen
	for _, state := range prev.index.All() {
		if state.Origin != index.Editor {
			continue
		}
		text := string(state.Document.Text())
		if _, err := next.index.Apply(ctx, index.Change{
			URI:     state.URI,
			Kind:    state.Kind(),
			Version: state.Version(),
			Origin:  index.Editor,
			Text:    &text,
		}); err != nil {
			multierr.AppendInto(&errs, err)
		}
	}
	var removed []string
	for _, state := range prev.index.All() {
		if _, ok := next.index.Get(state.URI); !ok {
			removed = append(removed, state.URI)
		}
	}
	w.gen = next
	w.mu.Unlock()

	prev.close()
	zerolog.Ctx(ctx).Info().Int("removed", len(removed)).Msg("workspace reset")
	return removed, errs
}

// Shutdown stops the index writers and releases the parsers.
func (w *Workspace) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.gen.close()
}
