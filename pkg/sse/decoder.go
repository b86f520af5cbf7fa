package sse

import (
	"strconv"
	"strings"
)

// DecodeFrame parses one frame into an Event. It returns false when the frame
// decodes to nothing dispatchable: per the SSE spec, an event whose
// accumulated data is empty is never dispatched.
//
// Decoding is stateless — each frame maps independently to at most one event.
func DecodeFrame(frame []byte) (*Event, bool) {
	ev := &Event{}
	var data strings.Builder

	// Split on the raw bytes first so that encoded sequences inside field
	// values can never be mistaken for line terminators.
	for _, raw := range splitLinesDropEnds(frame) {
		line := string(raw)

		// Blank lines and comment lines are skipped.
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, rest, hasValue := strings.Cut(line, ":")

		value := ""
		if hasValue {
			// "If value starts with a single U+0020 SPACE character,
			// remove it from value."
			value = strings.TrimPrefix(rest, " ")
		}

		switch field {
		case "data":
			// Multi-line data: each data line contributes value + "\n".
			data.WriteString(value)
			data.WriteByte('\n')
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		case "retry":
			// Last parsable value wins; garbage is ignored.
			if ms, err := strconv.Atoi(value); err == nil {
				ev.Retry = ms
			}
		default:
			// Unknown fields (vendor extensions included) are ignored.
		}
	}

	ev.Data = data.String()
	if ev.Data == "" {
		return nil, false
	}

	// Strip exactly one trailing newline left by the final data line.
	ev.Data = strings.TrimSuffix(ev.Data, "\n")

	if ev.Type == "" {
		ev.Type = "message"
	}

	return ev, true
}

// splitLinesDropEnds splits p into physical lines on \r, \n, and \r\n,
// discarding the terminators. Unlike strings/bufio splitting, a lone \r is a
// terminator here too.
func splitLinesDropEnds(p []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\n':
			lines = append(lines, p[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, p[start:i])
			if i+1 < len(p) && p[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(p) {
		lines = append(lines, p[start:])
	}
	return lines
}
