// Package lsp serves the workspace over the language server protocol.
package lsp

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/walteh/jinjals/pkg/config"
	"github.com/walteh/jinjals/pkg/document"
	"github.com/walteh/jinjals/pkg/syntax"
	"github.com/walteh/jinjals/pkg/workspace"
)

const (
	Name    = "jinjals"
	Version = "0.1.0"

	// ResetCommand re-walks the workspace and republishes every diagnostic.
	ResetCommand = "reset_variables"

	methodPublishDiagnostics = "textDocument/publishDiagnostics"
	methodLogMessage         = "window/logMessage"
)

// Server represents an LSP server instance
type Server struct {
	handler protocol.Handler
	fs      afero.Fs

	// ctx carries the logger
	ctx    context.Context
	output io.Writer

	// Server identification
	id    string
	debug bool
	watch bool

	mu          sync.RWMutex
	root        string
	workspace   *workspace.Workspace
	watcher     *workspace.Watcher
	notify      glsp.NotifyFunc
	initialized bool
	shutdown    bool
}

type Option func(*Server)

func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// WithWatch turns the filesystem watcher on or off. It is on by default.
func WithWatch(watch bool) Option {
	return func(s *Server) { s.watch = watch }
}

// WithLogOutput sets where logs go besides the client's log window.
func WithLogOutput(w io.Writer) Option {
	return func(s *Server) { s.output = w }
}

func NewServer(ctx context.Context, fs afero.Fs, opts ...Option) *Server {
	s := &Server{
		fs:     fs,
		id:     uuid.NewString(),
		watch:  true,
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx = zerolog.Ctx(ctx).With().Str("server", s.id).Logger().WithContext(ctx)

	s.handler = protocol.Handler{
		Initialize:                     s.Initialize,
		Initialized:                    s.Initialized,
		Shutdown:                       s.Shutdown,
		SetTrace:                       s.SetTrace,
		TextDocumentDidOpen:            s.DidOpen,
		TextDocumentDidChange:          s.DidChange,
		TextDocumentDidClose:           s.DidClose,
		TextDocumentDidSave:            s.DidSave,
		TextDocumentCompletion:         s.Completion,
		TextDocumentHover:              s.Hover,
		TextDocumentDefinition:         s.Definition,
		TextDocumentCodeAction:         s.CodeAction,
		WorkspaceExecuteCommand:        s.ExecuteCommand,
		WorkspaceDidChangeWatchedFiles: s.DidChangeWatchedFiles,
	}
	return s
}

func (s *Server) ID() string {
	return s.id
}

func (s *Server) Handler() *protocol.Handler {
	return &s.handler
}

// RunStdio serves requests on stdin and stdout until the client exits.
func (s *Server) RunStdio() error {
	return server.NewServer(&s.handler, Name, s.debug).RunStdio()
}

// Workspace returns the active workspace, or nil when the configuration was invalid.
func (s *Server) Workspace() *workspace.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspace
}

func rootOf(params *protocol.InitializeParams) string {
	if params.RootURI != nil && *params.RootURI != "" {
		return document.NormalizeURI(string(*params.RootURI))
	}
	if params.RootPath != nil && *params.RootPath != "" {
		return *params.RootPath
	}
	if len(params.WorkspaceFolders) > 0 {
		return document.NormalizeURI(string(params.WorkspaceFolders[0].URI))
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// loadConfig layers the workspace config file and the initialization options
// over the defaults.
func (s *Server) loadConfig(root string, opts any) (*config.Config, error) {
	cfg, _, err := config.Discover(s.logCtx(), s.fs, root)
	if err != nil {
		return nil, err
	}
	cfg, err = cfg.WithInitializationOptions(opts)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Resolve(root)
	if err := cfg.Validate(s.fs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Server) Initialize(context *glsp.Context, params *protocol.InitializeParams) (any, error) {
	logger := zerolog.Ctx(s.logCtx())
	root := rootOf(params)
	logger.Debug().Str("root", root).Msg("initializing server")

	result := protocol.InitializeResult{
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: ptr(Version),
		},
	}

	cfg, err := s.loadConfig(root, params.InitializationOptions)
	if err != nil {
		// analysis stays off, nothing is advertised
		logger.Error().Err(err).Msg("invalid configuration")
		return result, nil
	}

	ws, err := workspace.New(s.fs, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("creating workspace")
		return result, nil
	}

	s.mu.Lock()
	s.root = root
	s.workspace = ws
	s.mu.Unlock()

	result.Capabilities = protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: ptr(true),
			Change:    ptr(protocol.TextDocumentSyncKindIncremental),
			Save:      &protocol.SaveOptions{IncludeText: ptr(true)},
		},
		CompletionProvider: &protocol.CompletionOptions{
			TriggerCharacters: []string{".", "|", " ", "{"},
		},
		HoverProvider:      ptr(true),
		DefinitionProvider: ptr(true),
		CodeActionProvider: &protocol.CodeActionOptions{
			CodeActionKinds: []protocol.CodeActionKind{protocol.CodeActionKindSource},
		},
		ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
			Commands: []string{ResetCommand},
		},
	}

	logger.Info().Str("templates", cfg.Templates).Strs("backend", cfg.Backend).Str("lang", cfg.Lang).Msg("server configured")
	return result, nil
}

func (s *Server) Initialized(context *glsp.Context, params *protocol.InitializedParams) error {
	s.mu.Lock()
	s.initialized = true
	s.notify = context.Notify
	if context.Notify != nil {
		s.ctx = ApplyLSPWriter(s.ctx, s.output, context.Notify, s.debug)
	}
	ws := s.workspace
	s.mu.Unlock()
	ctx := s.logCtx()

	if ws == nil {
		return nil
	}

	if err := ws.Load(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("some files could not be indexed")
	}
	s.publishAll(context.Notify)

	if s.watch {
		w, err := ws.Watch(ctx, s.onFileChange)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("file watcher unavailable")
			return nil
		}
		s.mu.Lock()
		s.watcher = w
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) logCtx() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Server) notifier() glsp.NotifyFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notify
}

func (s *Server) onFileChange(_ context.Context, path string) {
	s.republish(s.notifier(), path)
}

func (s *Server) Shutdown(context *glsp.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	watcher, ws := s.watcher, s.workspace
	s.mu.Unlock()

	logger := zerolog.Ctx(s.logCtx())
	// the watcher callback takes the lock, so stop it outside
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn().Err(err).Msg("stopping file watcher")
		}
	}
	if ws != nil {
		ws.Shutdown()
	}
	logger.Debug().Msg("server shut down")
	return nil
}

func (s *Server) SetTrace(context *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// republish sends diagnostics for a changed file. A backend file can change
// what every template resolves to, so all templates are republished then.
func (s *Server) republish(notify glsp.NotifyFunc, uri string) {
	ws := s.Workspace()
	if ws == nil || notify == nil {
		return
	}
	if _, indexed := ws.Index().Get(uri); !indexed {
		// removed from disk
		s.clear(notify, uri)
	}
	if kind, ok := ws.Kind(uri); ok && kind == syntax.Backend {
		s.publishAll(notify)
		return
	}
	s.publish(notify, uri)
}

func (s *Server) publish(notify glsp.NotifyFunc, uri string) {
	ws := s.Workspace()
	if ws == nil || notify == nil {
		return
	}
	rep, ok := ws.Diagnose(s.logCtx(), uri)
	if !ok {
		return
	}
	notify(methodPublishDiagnostics, toPublishParams(rep))
}

// clear publishes an empty diagnostic list for a file that is no longer indexed.
func (s *Server) clear(notify glsp.NotifyFunc, uri string) {
	if notify == nil {
		return
	}
	notify(methodPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(document.URI(document.NormalizeURI(uri))),
		Diagnostics: []protocol.Diagnostic{},
	})
}

func (s *Server) publishAll(notify glsp.NotifyFunc) {
	ws := s.Workspace()
	if ws == nil || notify == nil {
		return
	}
	ctx := s.logCtx()
	reports := ws.Reports(ctx)
	for _, rep := range reports {
		notify(methodPublishDiagnostics, toPublishParams(rep))
	}
	zerolog.Ctx(ctx).Debug().Int("files", len(reports)).Msg("published diagnostics")
}

// ready returns the workspace when the server has a valid configuration and
// has not shut down.
func (s *Server) ready() (*workspace.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.workspace == nil || s.shutdown {
		return nil, false
	}
	return s.workspace, true
}

func ptr[T any](v T) *T {
	return &v
}
