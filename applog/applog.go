// Package applog provides the process-wide structured logger used by every
// component of scgid: the supervisor, the dispatcher, each worker and the
// administrative surface. It wraps sirupsen/logrus the way the teacher
// codebase's logger package does, trimmed to what a single-binary,
// multi-process daemon needs: a level threshold, an optional child-process
// tag, and a colorized text formatter on terminals.
package applog

import (
	"io"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/nabbar/scgid/logger/level"
)

// Logger is the handle every package logs through. It is safe for
// concurrent use, matching logrus.Logger's own guarantees.
type Logger struct {
	mu  sync.RWMutex
	log *logrus.Logger
	tag string
}

var (
	instance *Logger
	once     sync.Once
)

// Default returns the process-wide logger, creating it on first use with
// InfoLevel and output on stderr. Call Init before Default is first touched
// to override these defaults.
func Default() *Logger {
	once.Do(func() {
		instance = New(level.InfoLevel, "")
	})
	return instance
}

// Init installs the process-wide logger, replacing whatever Default would
// otherwise have lazily created. Intended to be called once from cmd/scgid
// after flags and config have been parsed.
func Init(lvl level.Level, tag string) *Logger {
	instance = New(lvl, tag)
	once.Do(func() {})
	return instance
}

// New builds a standalone logger at the given level. tag, when non-empty,
// is attached to every entry under the "proc" field — the supervisor passes
// "supervisor", each worker passes its own pid-derived tag.
func New(lvl level.Level, tag string) *Logger {
	l := logrus.New()
	l.SetOutput(colorable.NewColorableStderr())
	l.SetLevel(lvl.Logrus())
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	return &Logger{log: l, tag: tag}
}

// SetLevel adjusts the logging threshold at runtime.
func (g *Logger) SetLevel(lvl level.Level) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log.SetLevel(lvl.Logrus())
}

// SetOutput redirects where log entries are written, mainly for tests.
func (g *Logger) SetOutput(w io.Writer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log.SetOutput(w)
}

func (g *Logger) entry() *logrus.Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e := logrus.NewEntry(g.log)
	if g.tag != "" {
		e = e.WithField("proc", g.tag)
	}
	return e
}

// With returns a derived entry carrying the given structured fields,
// for call sites that want to attach request- or worker-specific context
// (pid, remote address, request id) without repeating it on every line.
func (g *Logger) With(fields logrus.Fields) *logrus.Entry {
	return g.entry().WithFields(fields)
}

func (g *Logger) Debugf(format string, args ...interface{}) { g.entry().Debugf(format, args...) }
func (g *Logger) Infof(format string, args ...interface{})  { g.entry().Infof(format, args...) }
func (g *Logger) Warnf(format string, args ...interface{})  { g.entry().Warnf(format, args...) }
func (g *Logger) Errorf(format string, args ...interface{}) { g.entry().Errorf(format, args...) }

// Fatalf logs at fatal level and terminates the process; logrus.Entry.Fatalf
// calls os.Exit(1) itself once the entry is written.
func (g *Logger) Fatalf(format string, args ...interface{}) {
	g.entry().Fatalf(format, args...)
}
