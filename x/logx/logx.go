// Package logx is the component logger: one prefixed line per call, info
// lines suppressed when Quiet is set, errors always written.
package logx

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	quiet atomic.Bool
	std   = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// SetQuiet disables Info output globally.
func SetQuiet(q bool) { quiet.Store(q) }

// SetOutput redirects all loggers (tests use io.Discard or a buffer).
func SetOutput(w io.Writer) { std.SetOutput(w) }

// Logger prefixes lines with its component name, e.g. "[acquire] ".
type Logger struct {
	prefix string
}

func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Infof(format string, args ...any) {
	if quiet.Load() {
		return
	}
	std.Printf(l.prefix+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	std.Printf(l.prefix+"error: "+format, args...)
}
