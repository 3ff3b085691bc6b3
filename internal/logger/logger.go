// Package logger is a small leveled logger so pipeline packages do not
// bind to a concrete sink; tests pass a silent implementation.
package logger

import (
	"io"
	"log"
	"strings"
)

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var levels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

type stdLogger struct {
	l     *log.Logger
	level int
}

// New builds a logger writing to w at the given minimum level.
// Unknown levels default to info.
func New(w io.Writer, level string) Logger {
	lv, ok := levels[strings.ToLower(level)]
	if !ok {
		lv = levels["info"]
	}
	return &stdLogger{l: log.New(w, "", log.LstdFlags), level: lv}
}

func (s *stdLogger) logf(lv int, tag, format string, args ...any) {
	if lv >= s.level {
		s.l.Printf(tag+" "+format, args...)
	}
}

func (s *stdLogger) Debugf(format string, args ...any) { s.logf(0, "[DEBUG]", format, args...) }
func (s *stdLogger) Infof(format string, args ...any)  { s.logf(1, "[INFO]", format, args...) }
func (s *stdLogger) Warnf(format string, args ...any)  { s.logf(2, "[WARN]", format, args...) }
func (s *stdLogger) Errorf(format string, args ...any) { s.logf(3, "[ERROR]", format, args...) }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }
