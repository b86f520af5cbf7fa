package audit

import "context"

// Recorder persists exchange records to an audit backend.
type Recorder interface {
	Record(ctx context.Context, ex *Exchange) error
	Close() error
}
