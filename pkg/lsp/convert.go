package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/walteh/jinjals/pkg/completion/providers"
	"github.com/walteh/jinjals/pkg/diagnostic"
	"github.com/walteh/jinjals/pkg/document"
	"github.com/walteh/jinjals/pkg/position"
)

// toPoint converts a UTF-16 client position, clamping it into the text.
func toPoint(lines *position.LineIndex, p protocol.Position) position.Point {
	return lines.FromUTF16(int(p.Line), int(p.Character))
}

func toPosition(lines *position.LineIndex, p position.Point) protocol.Position {
	line, character := lines.ToUTF16(p)
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(character)}
}

func toRange(lines *position.LineIndex, r position.Range) protocol.Range {
	return protocol.Range{Start: toPosition(lines, r.Start), End: toPosition(lines, r.End)}
}

func toEditorRange(r *protocol.Range) *document.EditorRange {
	if r == nil {
		return nil
	}
	return &document.EditorRange{
		StartLine:      int(r.Start.Line),
		StartCharacter: int(r.Start.Character),
		EndLine:        int(r.End.Line),
		EndCharacter:   int(r.End.Character),
	}
}

func toChanges(events []any) []document.Change {
	out := make([]document.Change, 0, len(events))
	for _, ev := range events {
		switch v := ev.(type) {
		case protocol.TextDocumentContentChangeEvent:
			out = append(out, document.Change{Range: toEditorRange(v.Range), Text: v.Text})
		case protocol.TextDocumentContentChangeEventWhole:
			out = append(out, document.Change{Text: v.Text})
		}
	}
	return out
}

func severity(s diagnostic.Severity) *protocol.DiagnosticSeverity {
	switch s {
	case diagnostic.Error:
		return ptr(protocol.DiagnosticSeverityError)
	case diagnostic.Warning:
		return ptr(protocol.DiagnosticSeverityWarning)
	case diagnostic.Information:
		return ptr(protocol.DiagnosticSeverityInformation)
	}
	return ptr(protocol.DiagnosticSeverityHint)
}

// toPublishParams always carries a non-nil list so an empty report clears
// the client's diagnostics.
func toPublishParams(rep diagnostic.Report) *protocol.PublishDiagnosticsParams {
	diags := make([]protocol.Diagnostic, 0, len(rep.Diagnostics))
	for _, d := range rep.Diagnostics {
		diags = append(diags, protocol.Diagnostic{
			Range:    toRange(rep.Lines, d.Range),
			Severity: severity(d.Severity),
			Source:   ptr(diagnostic.Source),
			Message:  d.Message,
		})
	}
	return &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentUri(document.URI(rep.URI)),
		Diagnostics: diags,
	}
}

func itemKind(k providers.Kind) *protocol.CompletionItemKind {
	switch k {
	case providers.KindFilter:
		return ptr(protocol.CompletionItemKindMethod)
	case providers.KindFunction:
		return ptr(protocol.CompletionItemKindFunction)
	case providers.KindModule:
		return ptr(protocol.CompletionItemKindModule)
	}
	return ptr(protocol.CompletionItemKindVariable)
}

func toCompletionItems(lines *position.LineIndex, items []providers.CompletionItem) []protocol.CompletionItem {
	out := make([]protocol.CompletionItem, 0, len(items))
	for _, it := range items {
		ci := protocol.CompletionItem{
			Label: it.Label,
			Kind:  itemKind(it.Kind),
		}
		if it.Detail != "" {
			ci.Detail = ptr(it.Detail)
		}
		if it.Documentation != "" {
			ci.Documentation = protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: it.Documentation}
		}
		switch {
		case it.Range != nil:
			ci.TextEdit = protocol.TextEdit{Range: toRange(lines, *it.Range), NewText: it.InsertText}
		case it.InsertText != "":
			ci.InsertText = ptr(it.InsertText)
		}
		out = append(out, ci)
	}
	return out
}
