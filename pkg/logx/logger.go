package logx

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

// ILogger defines the interface for log operations.
// Components receive an ILogger instead of reaching for the global one, so tests
// can pass Discard().
type ILogger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	// Named returns a child logger whose prefix is extended by name.
	Named(name string) ILogger
}

// New creates a new Logger instance writing to w.
func New(w io.Writer) *Logger {
	return &Logger{
		core: &core{
			writer:    w,
			formatter: DefaultFormatter,
			level:     LevelDebug,
		},
	}
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	l := New(io.Discard)
	l.SetLevel(LevelError + 1)
	return l
}

// core is shared by a logger and all of its Named children.
type core struct {
	mu        sync.RWMutex
	writer    io.Writer
	formatter Formatter
	level     Level
}

// Logger represents a logging object
type Logger struct {
	core      *core
	prefix    string
	callDepth int
}

// SetOutput sets the log output destination (thread-safe)
func (l *Logger) SetOutput(w io.Writer) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.writer = w
}

// SetFormatter sets the log formatting function (thread-safe)
func (l *Logger) SetFormatter(fn Formatter) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.formatter = fn
}

// SetLevel drops entries below level.
func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// SetPrefix replaces the prefix of this logger.
func (l *Logger) SetPrefix(prefix string) {
	l.prefix = prefix
}

// Named returns a child logger sharing output, formatter and level.
func (l *Logger) Named(name string) ILogger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{core: l.core, prefix: prefix, callDepth: l.callDepth}
}

func (l *Logger) Debug(format string, v ...any) { _ = l.log(LevelDebug, format, v...) }

func (l *Logger) Info(format string, v ...any) { _ = l.log(LevelInfo, format, v...) }

func (l *Logger) Warn(format string, v ...any) { _ = l.log(LevelWarn, format, v...) }

func (l *Logger) Error(format string, v ...any) { _ = l.log(LevelError, format, v...) }

// Log records a message at an explicit level.
func (l *Logger) Log(level Level, format string, v ...any) error {
	return l.log(level, format, v...)
}

// log formats the entry with the caller's file and line and writes it out.
func (l *Logger) log(level Level, format string, v ...any) error {
	l.core.mu.RLock()
	formatter := l.core.formatter
	writer := l.core.writer
	minLevel := l.core.level
	l.core.mu.RUnlock()
	if level < minLevel {
		return nil
	}
	callDepth := l.callDepth
	if callDepth == 0 {
		callDepth = 2
	}
	_, file, line, ok := runtime.Caller(callDepth)
	if !ok {
		file = "???"
		line = 0
	}
	if writer == nil {
		writer = os.Stdout
	}
	_, err := writer.Write(formatter(LogEntry{
		Time:      time.Now(),
		Level:     level,
		Prefix:    l.prefix,
		CallDepth: callDepth,
		File:      file,
		Line:      line,
		Message:   fmt.Sprintf(format, v...),
	}))
	return err
}
