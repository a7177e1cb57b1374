// Package document holds immutable versions of open text buffers.
package document

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/walteh/jinjals/pkg/position"
	"github.com/walteh/jinjals/pkg/syntax"
)

// TemplateExtensions are the file extensions analyzed with the template grammar.
var TemplateExtensions = []string{".html", ".jinja", ".j2", ".jinja2"}

// Document is one version of a buffer. Applying a change returns a new
// Document; the receiver is never modified.
type Document struct {
	URI     string
	Kind    syntax.LanguageKind
	Version int32

	text  []byte
	lines *position.LineIndex
}

func New(uri string, kind syntax.LanguageKind, version int32, text []byte) *Document {
	return &Document{
		URI:     NormalizeURI(uri),
		Kind:    kind,
		Version: version,
		text:    text,
		lines:   position.NewLineIndex(text),
	}
}

func (d *Document) Text() []byte {
	return d.text
}

func (d *Document) Lines() *position.LineIndex {
	return d.lines
}

// EditorRange is a range in editor coordinates: rows and UTF-16 code unit columns.
type EditorRange struct {
	StartLine      int
	StartCharacter int
	EndLine        int
	EndCharacter   int
}

// Change replaces Range with Text. A nil Range replaces the whole buffer.
type Change struct {
	Range *EditorRange
	Text  string
}

// Apply returns the next version of the document and the edit delta. The
// edit is nil when the change replaced the whole buffer.
func (d *Document) Apply(version int32, ch Change) (*Document, *position.Edit) {
	if ch.Range == nil {
		return &Document{URI: d.URI, Kind: d.Kind, Version: version, text: []byte(ch.Text), lines: position.NewLineIndex([]byte(ch.Text))}, nil
	}

	start := d.lines.FromUTF16(ch.Range.StartLine, ch.Range.StartCharacter)
	end := d.lines.FromUTF16(ch.Range.EndLine, ch.Range.EndCharacter)
	if end.Before(start) {
		start, end = end, start
	}
	startByte := d.lines.Offset(start)
	oldEnd := d.lines.Offset(end)

	text := make([]byte, 0, len(d.text)-(oldEnd-startByte)+len(ch.Text))
	text = append(text, d.text[:startByte]...)
	text = append(text, ch.Text...)
	text = append(text, d.text[oldEnd:]...)

	next := &Document{URI: d.URI, Kind: d.Kind, Version: version, text: text, lines: position.NewLineIndex(text)}
	newEnd := startByte + len(ch.Text)
	return next, &position.Edit{
		StartByte:   startByte,
		OldEndByte:  oldEnd,
		NewEndByte:  newEnd,
		StartPoint:  start,
		OldEndPoint: end,
		NewEndPoint: next.lines.Point(newEnd),
	}
}

// NormalizeURI strips the file scheme and decodes escapes so that the same
// file always maps to the same key.
func NormalizeURI(uri string) string {
	uri = strings.TrimPrefix(uri, "file://")
	uri = strings.TrimPrefix(uri, "file:")
	if un, err := url.PathUnescape(uri); err == nil {
		uri = un
	}
	return uri
}

// URI turns a path into a file URI.
func URI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// KindForPath maps a file extension to the grammar that analyzes it.
func KindForPath(path string, backend syntax.BackendLanguage) (syntax.LanguageKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range TemplateExtensions {
		if ext == e {
			return syntax.Template, true
		}
	}
	if backend.Valid() && ext == backend.FileExtension() {
		return syntax.Backend, true
	}
	return syntax.Template, false
}
