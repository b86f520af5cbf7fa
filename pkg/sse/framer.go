package sse

import (
	"bytes"
	"io"
)

// frameEnds are the delimiter pairs that terminate a frame. A frame ends as
// soon as the accumulation buffer's tail matches any of them.
var frameEnds = [][]byte{
	[]byte("\r\n\r\n"),
	[]byte("\n\n"),
	[]byte("\r\r"),
}

// Framer reassembles the raw chunked bytes of a response body into
// delimiter-terminated frames. Upstreams are free to break a single frame
// across multiple HTTP chunks, and to pack multiple frames into one chunk, so
// delimiter detection runs on the accumulation buffer rather than on any
// single chunk. A naive per-chunk splitter would miss a delimiter pair that
// straddles a chunk boundary.
//
// A Framer is a single forward pass over one response body. It is not
// restartable and not safe for concurrent use.
type Framer struct {
	src io.Reader

	// chunk is the scratch read buffer; buf accumulates lines until a frame
	// delimiter lands; pending holds frames decoded ahead of the caller when
	// one chunk carries more than one frame.
	chunk   []byte
	buf     []byte
	pending [][]byte

	done bool
	err  error
}

// NewFramer returns a Framer that reads transport chunks from src. Each call
// to src.Read is treated as one chunk.
func NewFramer(src io.Reader) *Framer {
	return &Framer{
		src:   src,
		chunk: make([]byte, 64*1024),
	}
}

// Next returns the next complete frame, including its terminating delimiter.
// When the source is exhausted, any residual buffered bytes are returned as
// one final frame (an upstream may close the connection without
// double-terminating its last frame); after that Next reports io.EOF.
//
// The returned slice is owned by the caller; the Framer does not reuse it.
func (f *Framer) Next() ([]byte, error) {
	for len(f.pending) == 0 {
		if f.done {
			if f.err != nil {
				return nil, f.err
			}
			return nil, io.EOF
		}

		n, err := f.src.Read(f.chunk)
		if n > 0 {
			f.consume(f.chunk[:n])
		}
		if err != nil {
			f.done = true
			if err != io.EOF {
				f.err = err
			}
			// Flush the residual buffer as a final, undelimited frame.
			if len(f.buf) > 0 {
				f.pending = append(f.pending, f.buf)
				f.buf = nil
			}
		}
	}

	frame := f.pending[0]
	f.pending = f.pending[1:]
	return frame, nil
}

// consume splits one chunk into terminator-retaining physical lines and
// appends them to the accumulation buffer, emitting a frame into the pending
// queue every time the buffer's tail completes a delimiter pair.
func (f *Framer) consume(chunk []byte) {
	for _, line := range splitLinesKeepEnds(chunk) {
		f.buf = append(f.buf, line...)
		if hasFrameEnd(f.buf) {
			f.pending = append(f.pending, f.buf)
			f.buf = nil
		}
	}
}

// hasFrameEnd reports whether b ends with one of the frame delimiters.
func hasFrameEnd(b []byte) bool {
	for _, end := range frameEnds {
		if bytes.HasSuffix(b, end) {
			return true
		}
	}
	return false
}

// splitLinesKeepEnds splits p into physical lines on \r, \n, and \r\n,
// keeping each terminator attached to its line. A trailing run with no
// terminator is returned as the final element.
func splitLinesKeepEnds(p []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\n':
			lines = append(lines, p[start:i+1])
			start = i + 1
		case '\r':
			if i+1 < len(p) && p[i+1] == '\n' {
				i++
			}
			lines = append(lines, p[start:i+1])
			start = i + 1
		}
	}
	if start < len(p) {
		lines = append(lines, p[start:])
	}
	return lines
}
