package lsp

import (
	"github.com/rs/zerolog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/document"
	"github.com/walteh/jinjals/pkg/workspace"
)

func (s *Server) DidOpen(context *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	ws, ok := s.ready()
	if !ok {
		return nil
	}
	ctx := s.logCtx()
	uri := string(params.TextDocument.URI)
	zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("document opened")

	if _, err := ws.OpenDocument(ctx, uri, int32(params.TextDocument.Version), params.TextDocument.Text); err != nil {
		if errors.Is(err, workspace.ErrUnsupported) {
			return nil
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("opening document")
	}
	s.republish(context.Notify, uri)
	return nil
}

func (s *Server) DidChange(context *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	ws, ok := s.ready()
	if !ok || len(params.ContentChanges) == 0 {
		return nil
	}
	ctx := s.logCtx()
	uri := string(params.TextDocument.URI)
	zerolog.Ctx(ctx).Debug().Str("uri", uri).Int("changes", len(params.ContentChanges)).Msg("document changed")

	if _, err := ws.ChangeDocument(ctx, uri, int32(params.TextDocument.Version), toChanges(params.ContentChanges)); err != nil {
		if errors.Is(err, workspace.ErrUnsupported) {
			return nil
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Msg("changing document")
	}
	s.republish(context.Notify, uri)
	return nil
}

func (s *Server) DidClose(context *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	ws, ok := s.ready()
	if !ok {
		return nil
	}
	ctx := s.logCtx()
	uri := string(params.TextDocument.URI)
	zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("document closed")
	if err := ws.CloseDocument(ctx, uri); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("closing document")
	}
	return nil
}

func (s *Server) DidSave(context *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	ws, ok := s.ready()
	if !ok {
		return nil
	}
	ctx := s.logCtx()
	uri := string(params.TextDocument.URI)
	zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("document saved")

	if _, err := ws.SaveDocument(ctx, uri, params.Text); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("uri", uri).Msg("saving document")
		return nil
	}
	s.republish(context.Notify, uri)
	return nil
}

// DidChangeWatchedFiles applies file events reported by the client.
func (s *Server) DidChangeWatchedFiles(context *glsp.Context, params *protocol.DidChangeWatchedFilesParams) error {
	ws, ok := s.ready()
	if !ok {
		return nil
	}
	ctx := s.logCtx()
	for _, ev := range params.Changes {
		typ := workspace.FileEventWrite
		switch ev.Type {
		case protocol.FileChangeTypeCreated:
			typ = workspace.FileEventCreate
		case protocol.FileChangeTypeDeleted:
			typ = workspace.FileEventRemove
		}
		path := document.NormalizeURI(string(ev.URI))
		if ws.Sync(ctx, path, typ) {
			s.republish(context.Notify, path)
		}
	}
	return nil
}

func (s *Server) Completion(context *glsp.Context, params *protocol.CompletionParams) (any, error) {
	ws, ok := s.ready()
	if !ok {
		return nil, nil
	}
	uri := string(params.TextDocument.URI)
	lines, ok := ws.Lines(uri)
	if !ok {
		return nil, nil
	}
	items := ws.Complete(s.logCtx(), uri, toPoint(lines, params.Position))
	return toCompletionItems(lines, items), nil
}

func (s *Server) Hover(context *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	ws, ok := s.ready()
	if !ok {
		return nil, nil
	}
	uri := string(params.TextDocument.URI)
	lines, ok := ws.Lines(uri)
	if !ok {
		return nil, nil
	}
	info, ok := ws.Hover(s.logCtx(), uri, toPoint(lines, params.Position))
	if !ok {
		return nil, nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: info.Content},
		Range:    ptr(toRange(lines, info.Range)),
	}, nil
}

func (s *Server) Definition(context *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	ws, ok := s.ready()
	if !ok {
		return nil, nil
	}
	uri := string(params.TextDocument.URI)
	lines, ok := ws.Lines(uri)
	if !ok {
		return nil, nil
	}
	locs := ws.Definition(s.logCtx(), uri, toPoint(lines, params.Position))
	if len(locs) == 0 {
		return nil, nil
	}

	out := make([]protocol.Location, 0, len(locs))
	for _, loc := range locs {
		l := protocol.Location{URI: protocol.DocumentUri(document.URI(loc.URI))}
		if target, ok := ws.Lines(loc.URI); ok {
			l.Range = toRange(target, loc.Range)
		}
		out = append(out, l)
	}
	return out, nil
}

// CodeAction offers the reset command anywhere in a known document.
func (s *Server) CodeAction(context *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	ws, ok := s.ready()
	if !ok {
		return nil, nil
	}
	if _, ok := ws.Lines(string(params.TextDocument.URI)); !ok {
		return nil, nil
	}
	title := "Reset variables"
	return []protocol.CodeAction{{
		Title: title,
		Kind:  ptr(protocol.CodeActionKindSource),
		Command: &protocol.Command{
			Title:   title,
			Command: ResetCommand,
		},
	}}, nil
}

func (s *Server) ExecuteCommand(context *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	ws, ok := s.ready()
	if !ok {
		return nil, nil
	}
	if params.Command != ResetCommand {
		return nil, errors.Errorf("unknown command %q", params.Command)
	}

	ctx := s.logCtx()
	removed, err := ws.Reset(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("some files could not be indexed")
	}
	for _, uri := range removed {
		s.clear(context.Notify, uri)
	}
	s.publishAll(context.Notify)
	return nil, nil
}
