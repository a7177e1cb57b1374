package diagnostic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/jinjals/pkg/position"
)

// Code is the LSP DiagnosticSeverity number.
func (s Severity) Code() int {
	switch s {
	case Error:
		return 1
	case Warning:
		return 2
	case Information:
		return 3
	}
	return 4
}

// Report is the diagnostics of one file with the text they refer to.
type Report struct {
	URI         string
	Lines       *position.LineIndex
	Diagnostics []Diagnostic
}

// Formatter formats diagnostics into different output formats
type Formatter interface {
	Format(reports []Report) ([]byte, error)
}

// VSCodeFormatter formats diagnostics into VSCode-compatible format
type VSCodeFormatter struct{}

func NewVSCodeFormatter() *VSCodeFormatter {
	return &VSCodeFormatter{}
}

type vscodePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type vscodeRange struct {
	Start vscodePosition `json:"start"`
	End   vscodePosition `json:"end"`
}

type vscodeDiagnostic struct {
	Severity int         `json:"severity"`
	Message  string      `json:"message"`
	Source   string      `json:"source"`
	Range    vscodeRange `json:"range"`
}

type vscodeFile struct {
	URI         string             `json:"uri"`
	Diagnostics []vscodeDiagnostic `json:"diagnostics"`
}

func toVSCode(lines *position.LineIndex, r position.Range) vscodeRange {
	sl, sc := lines.ToUTF16(r.Start)
	el, ec := lines.ToUTF16(r.End)
	return vscodeRange{
		Start: vscodePosition{Line: sl, Character: sc},
		End:   vscodePosition{Line: el, Character: ec},
	}
}

func (f *VSCodeFormatter) Format(reports []Report) ([]byte, error) {
	result := make([]vscodeFile, 0, len(reports))
	for _, rep := range reports {
		if rep.Lines == nil {
			return nil, errors.Errorf("report for %s has no text", rep.URI)
		}
		file := vscodeFile{URI: rep.URI, Diagnostics: []vscodeDiagnostic{}}
		for _, d := range rep.Diagnostics {
			file.Diagnostics = append(file.Diagnostics, vscodeDiagnostic{
				Severity: d.Severity.Code(),
				Message:  d.Message,
				Source:   Source,
				Range:    toVSCode(rep.Lines, d.Range),
			})
		}
		result = append(result, file)
	}
	return json.MarshalIndent(result, "", "  ")
}

// TextFormatter writes one "uri:line:col: severity: message" line per diagnostic.
type TextFormatter struct{}

func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

func (f *TextFormatter) Format(reports []Report) ([]byte, error) {
	var buf bytes.Buffer
	for _, rep := range reports {
		for _, d := range rep.Diagnostics {
			fmt.Fprintf(&buf, "%s:%d:%d: %s: %s\n", rep.URI, d.Range.Start.Row+1, d.Range.Start.Column+1, d.Severity, d.Message)
		}
	}
	return buf.Bytes(), nil
}
