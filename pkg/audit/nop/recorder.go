package nop

import (
	"context"

	"github.com/harborworks/ferry/pkg/audit"
)

// Recorder is a no-op audit recorder used for tests and disabled mode.
type Recorder struct{}

// NewRecorder creates a new no-op audit recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record validates input and otherwise does nothing.
func (r *Recorder) Record(_ context.Context, ex *audit.Exchange) error {
	if ex == nil {
		return audit.ErrNilExchange
	}

	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error {
	return nil
}
