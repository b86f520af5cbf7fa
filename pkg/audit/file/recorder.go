// Package file provides an append-only JSON-lines audit recorder.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/harborworks/ferry/pkg/audit"
)

// Recorder appends one JSON line per exchange to a log file.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
}

// NewRecorder opens (or creates) the audit log file at path for appending.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}

	return &Recorder{file: f}, nil
}

// Record marshals the exchange and appends it as a single line.
func (r *Recorder) Record(_ context.Context, ex *audit.Exchange) error {
	if ex == nil {
		return audit.ErrNilExchange
	}

	line, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshaling exchange %s: %w", ex.ID, err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Write(line); err != nil {
		return fmt.Errorf("writing exchange %s: %w", ex.ID, err)
	}
	return nil
}

// Close closes the underlying log file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
