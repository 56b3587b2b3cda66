package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chihqiang/dbxnotify/types"
)

// StdoutOutput writes indented JSON messages to a writer, stdout by default.
type StdoutOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutOutput Creates a StdoutOutput instance
func NewStdoutOutput() (*StdoutOutput, error) {
	return NewWriterOutput(os.Stdout), nil
}

// NewWriterOutput renders messages to w.
func NewWriterOutput(w io.Writer) *StdoutOutput {
	return &StdoutOutput{w: w}
}

func (s *StdoutOutput) Send(ctx context.Context, msg types.Message) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.w, string(data))
	return err
}

// Close No resources to close for console output
func (s *StdoutOutput) Close() error {
	return nil
}
