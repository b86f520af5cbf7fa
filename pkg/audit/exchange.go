// Package audit defines the request/response audit trail for the ferry
// proxy. Each relayed exchange produces one Exchange record, handed to a
// Recorder backend off the HTTP hot path. Recording is write-only and
// best-effort: a failed record never fails the exchange it describes.
package audit

import (
	"strings"
	"time"
)

// SchemaVersionV1 is the first version of the exchange record schema.
const SchemaVersionV1 = 1

// Exchange is one fully resolved inbound/outbound exchange.
type Exchange struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	CallerAddr    string    `json:"caller_addr"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	DurationMs    int64     `json:"duration_ms"`

	Inbound  RequestInfo  `json:"inbound"`
	Outbound RequestInfo  `json:"outbound"`
	Response ResponseInfo `json:"response"`
}

// RequestInfo captures one leg's request as it was actually sent.
type RequestInfo struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseInfo captures the upstream response metadata. Body holds the
// decompressed text for buffered exchanges, or the concatenated relayed event
// data for streamed ones.
type ResponseInfo struct {
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Streamed   bool              `json:"streamed"`
	EventCount int               `json:"event_count,omitempty"`
}

// SanitizeBody makes raw bytes safe to store as a text field, replacing
// invalid UTF-8 sequences rather than failing the record.
func SanitizeBody(body []byte) string {
	return strings.ToValidUTF8(string(body), "�")
}
