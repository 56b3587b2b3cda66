package logx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// LogEntry represents a log entry structure
type LogEntry struct {
	Time      time.Time `json:"time"`
	Level     Level     `json:"-"`
	Prefix    string    `json:"logger,omitempty"` // dotted component name, may be empty
	File      string    `json:"-"`
	Line      int       `json:"-"`
	Message   string    `json:"msg"`
	CallDepth int       `json:"-"`
}

// Formatter renders a log entry into the bytes written to the output.
type Formatter func(entry LogEntry) []byte

// DefaultFormatter is the colored single line format used on terminals.
var DefaultFormatter Formatter = func(entry LogEntry) []byte {
	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	fileLine := fmt.Sprintf("[%s:%d]", TrimCallerPath(entry.File, 1), entry.Line)
	prefix := ""
	if entry.Prefix != "" {
		prefix = entry.Prefix + ": "
	}
	logStr := fmt.Sprintf("%s %s %s %s%s",
		timestamp,
		entry.Level.Color().Sprint(entry.Level.String()),
		color.New(color.FgHiBlack).Sprint(fileLine),
		color.New(color.FgHiBlack).Add(color.Bold).Sprint(prefix),
		entry.Level.Color().Sprint(entry.Message),
	)
	return []byte(logStr + "\n")
}

// JSONFormatter renders one JSON object per line for log collectors.
var JSONFormatter Formatter = func(entry LogEntry) []byte {
	line := struct {
		LogEntry
		Level  string `json:"level"`
		Caller string `json:"caller"`
	}{
		LogEntry: entry,
		Level:    strings.ToLower(strings.TrimSpace(entry.Level.String())),
		Caller:   fmt.Sprintf("%s:%d", TrimCallerPath(entry.File, 2), entry.Line),
	}
	data, err := json.Marshal(line)
	if err != nil {
		return []byte(fmt.Sprintf("{\"level\":\"error\",\"msg\":%q}\n", err.Error()))
	}
	return append(data, '\n')
}

// TrimCallerPath keeps the last n path segments of a runtime.Caller file path.
// runtime.Caller always uses '/' separators, also on Windows.
func TrimCallerPath(path string, n int) string {
	if n <= 0 {
		return path
	}
	idx := strings.LastIndexByte(path, '/')
	if idx == -1 {
		return path
	}
	for i := 0; i < n-1; i++ {
		idx = strings.LastIndexByte(path[:idx], '/')
		if idx == -1 {
			return path
		}
	}
	return path[idx+1:]
}
