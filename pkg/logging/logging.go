// Package logging provides the engine's leveled logger: a small Logger
// interface, a standard implementation writing to any io.Writer, and
// level parsing from a string. Level prefixes are colorized with
// lipgloss for an interactive console, with a plain-text fallback.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Level is logging verbosity, ordered least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the engine-wide logging contract; every package that logs
// takes one of these rather than reaching for the standard library
// directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

var (
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// standardLogger writes leveled, colorized lines to an io.Writer.
type standardLogger struct {
	level  Level
	plain  bool
	logger *log.Logger
}

// New constructs a Logger writing to output at levelStr ("debug", "info",
// "warn", "error"; anything else defaults to "info"). plain disables
// lipgloss styling, for non-TTY sinks (log files, CI output).
func New(levelStr string, output io.Writer, plain bool) Logger {
	if output == nil {
		output = os.Stderr
	}
	return &standardLogger{
		level:  ParseLevel(levelStr),
		plain:  plain,
		logger: log.New(output, "", log.Ldate|log.Ltime),
	}
}

// ParseLevel maps a config/flag string onto a Level.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *standardLogger) prefix(tag string, style lipgloss.Style) string {
	if l.plain {
		return "[" + tag + "] "
	}
	return style.Render("["+tag+"]") + " "
}

func (l *standardLogger) Debugf(format string, args ...interface{}) {
	if l.level <= LevelDebug {
		l.logger.Output(2, l.prefix("DEBUG", debugStyle)+fmt.Sprintf(format, args...))
	}
}

func (l *standardLogger) Infof(format string, args ...interface{}) {
	if l.level <= LevelInfo {
		l.logger.Output(2, l.prefix("INFO", infoStyle)+fmt.Sprintf(format, args...))
	}
}

func (l *standardLogger) Warnf(format string, args ...interface{}) {
	if l.level <= LevelWarn {
		l.logger.Output(2, l.prefix("WARN", warnStyle)+fmt.Sprintf(format, args...))
	}
}

func (l *standardLogger) Errorf(format string, args ...interface{}) {
	if l.level <= LevelError {
		l.logger.Output(2, l.prefix("ERROR", errorStyle)+fmt.Sprintf(format, args...))
	}
}

func (l *standardLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Output(2, l.prefix("FATAL", errorStyle)+fmt.Sprintf(format, args...))
	os.Exit(1)
}

// NoOp is a Logger that discards everything, for tests that don't care
// about log output.
type NoOp struct{}

func (NoOp) Debugf(string, ...interface{}) {}
func (NoOp) Infof(string, ...interface{})  {}
func (NoOp) Warnf(string, ...interface{})  {}
func (NoOp) Errorf(string, ...interface{}) {}
func (NoOp) Fatalf(string, ...interface{}) {}
