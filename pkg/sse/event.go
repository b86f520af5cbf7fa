// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// reader for use in the ferry proxy. It reassembles the raw chunked bytes of
// an upstream response body into delimiter-terminated frames and decodes each
// frame into at most one event for relay to the downstream client.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// ID is the last event ID from the "id:" field, if present.
	ID string

	// Type is the SSE event type from the "event:" field.
	// Defaults to "message" when the upstream never sets one.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline). Never carries a trailing newline.
	Data string

	// Retry is the reconnection hint from the "retry:" field in
	// milliseconds. Zero means the upstream never sent a valid one.
	Retry int
}
