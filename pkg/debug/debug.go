// Package debug builds the loggers used by the command line and the server.
package debug

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

const modulePrefix = "github.com/walteh/jinjals/"

// DefaultTimeFormat has millisecond precision and no zone.
const DefaultTimeFormat = "2006-01-02T15:04:05.000Z"

// skipFrames reads the event's unexported skip count so the caller hook
// honors CallerSkipFrame.
func skipFrames(e *zerolog.Event) int {
	v := reflect.ValueOf(e).Elem()
	field := v.FieldByName("skipFrame")
	if field.IsValid() {
		return int(field.Int())
	}
	return 0
}

type TimeHook struct {
	Format string
}

func (t TimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	format := t.Format
	if format == "" {
		format = DefaultTimeFormat
	}
	e.Str(zerolog.TimestampFieldName, time.Now().UTC().Format(format))
}

// CallerHook records where the event was logged from.
type CallerHook struct {
	WithColor bool
}

func (c CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	// Run, msg, Msg, then the logging call
	pc, file, line, ok := runtime.Caller(skipFrames(e) + 3)
	if !ok {
		return
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return
	}
	pkg, _ := SplitFuncName(fn.Name())
	e.Str(zerolog.CallerFieldName, FormatCaller(strings.TrimPrefix(pkg, modulePrefix), file, line, c.WithColor))
}

// SplitFuncName splits a runtime function name into its package path and
// the function, keeping the receiver with the function.
func SplitFuncName(name string) (pkg, function string) {
	lastSlash := strings.LastIndexByte(name, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}
	dot := strings.IndexByte(name[lastSlash:], '.')
	if dot < 0 {
		return name, ""
	}
	dot += lastSlash

	pkg, function = name[:dot], name[dot+1:]
	if before, after, found := strings.Cut(pkg, ".("); found {
		pkg = before
		function = "(" + after + "." + function
	}
	return pkg, function
}

func FormatCaller(pkg, path string, line int, colorize bool) string {
	file := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		file = path[i+1:]
	}
	if !colorize {
		return fmt.Sprintf("%s:%s:%d", pkg, file, line)
	}
	sep := color.New(color.Faint).Sprint(":")
	return pkg + sep + color.New(color.Bold).Sprint(file) + sep + color.New(color.FgHiRed, color.Bold).Sprintf("%d", line)
}

// New returns a logger writing to w at level. Colored loggers render
// through a console writer; the rest emit JSON.
func New(w io.Writer, level zerolog.Level, colorize bool) zerolog.Logger {
	if colorize {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: DefaultTimeFormat, NoColor: color.NoColor}
	}
	return zerolog.New(w).Level(level).Hook(TimeHook{}).Hook(CallerHook{WithColor: colorize})
}
