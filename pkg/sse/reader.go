package sse

import "io"

// Reader combines a Framer and the frame decoder into an event pipeline over
// one response body.
//
// ┌──────────────────┐   ┌───────────────┐   ┌───────────────┐
// │ source io.Reader │──▶│ Framer.Next() │──▶│ DecodeFrame() │──▶ Event
// └──────────────────┘   └───────────────┘   └───────────────┘
//
// All mutable parsing state lives inside the Reader, so one Reader per
// exchange gives each exchange its own isolated pipeline.
type Reader struct {
	framer *Framer
}

// NewReader returns a Reader that parses SSE events from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{framer: NewFramer(src)}
}

// Next returns the next dispatched event. It blocks until a complete frame is
// available and skips frames that decode to nothing (comment-only frames,
// keep-alives, events with no data). Next returns nil, nil when the source is
// exhausted.
func (r *Reader) Next() (*Event, error) {
	for {
		frame, err := r.framer.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if ev, ok := DecodeFrame(frame); ok {
			return ev, nil
		}
	}
}
