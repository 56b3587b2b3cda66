package logx

import (
	"io"
	"os"
	"sync"
)

var (
	std     *Logger   // Global default Logger instance
	stdOnce sync.Once // Ensures the global Logger is initialized only once (thread-safe)
)

// Default returns the process wide logger writing to stderr.
func Default() *Logger {
	stdOnce.Do(func() {
		std = New(os.Stderr)
	})
	return std
}

// SetOutput sets the output destination for the global Logger (thread-safe)
func SetOutput(w io.Writer) {
	Default().SetOutput(w)
}

// SetLevel sets the minimum level of the global Logger.
func SetLevel(level Level) {
	Default().SetLevel(level)
}

// SetFormatter sets the log formatting function for the global Logger (thread-safe)
func SetFormatter(fn Formatter) {
	Default().SetFormatter(fn)
}
