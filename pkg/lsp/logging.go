package lsp

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LSPWriter implements io.Writer to forward log entries to the client's log window
type LSPWriter struct {
	mu     sync.Mutex
	notify glsp.NotifyFunc
	min    zerolog.Level
}

func NewLSPWriter(notify glsp.NotifyFunc, min zerolog.Level) *LSPWriter {
	return &LSPWriter{notify: notify, min: min}
}

// ApplyLSPWriter returns a context whose logger writes to output and to the
// client. Only warnings and errors reach the client unless debug is set.
func ApplyLSPWriter(ctx context.Context, output io.Writer, notify glsp.NotifyFunc, debug bool) context.Context {
	min := zerolog.WarnLevel
	if debug {
		min = zerolog.DebugLevel
	}
	writer := zerolog.MultiLevelWriter(output, NewLSPWriter(notify, min))
	return zerolog.Ctx(ctx).Output(writer).WithContext(ctx)
}

func messageType(level zerolog.Level) protocol.MessageType {
	switch level {
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return protocol.MessageTypeError
	case zerolog.WarnLevel:
		return protocol.MessageTypeWarning
	case zerolog.InfoLevel:
		return protocol.MessageTypeInfo
	}
	return protocol.MessageTypeLog
}

func (w *LSPWriter) Write(p []byte) (n int, err error) {
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil // Skip malformed entries
	}

	level := zerolog.NoLevel
	if l, ok := entry["level"].(string); ok {
		if parsed, err := zerolog.ParseLevel(l); err == nil {
			level = parsed
		}
	}
	if level < w.min {
		return len(p), nil
	}

	var sb strings.Builder
	if m, ok := entry["message"].(string); ok {
		sb.WriteString(m)
	}
	if e, ok := entry["error"].(string); ok {
		sb.WriteString(": ")
		sb.WriteString(e)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.notify(methodLogMessage, &protocol.LogMessageParams{
		Type:    messageType(level),
		Message: sb.String(),
	})
	return len(p), nil
}
