package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecodeFrame", func() {
	It("decodes a single data line", func() {
		ev, ok := DecodeFrame([]byte("data: hello world\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("hello world"))
		Expect(ev.Type).To(Equal("message"))
		Expect(ev.ID).To(BeEmpty())
		Expect(ev.Retry).To(BeZero())
	})

	It("joins multiple data lines with newline", func() {
		ev, ok := DecodeFrame([]byte("data: foo\ndata: bar\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("foo\nbar"))
	})

	It("decodes event type, id, and retry", func() {
		ev, ok := DecodeFrame([]byte("id: 42\nevent: delta\nretry: 3000\ndata: x\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.ID).To(Equal("42"))
		Expect(ev.Type).To(Equal("delta"))
		Expect(ev.Retry).To(Equal(3000))
		Expect(ev.Data).To(Equal("x"))
	})

	It("uses the last occurrence for non-data fields", func() {
		ev, ok := DecodeFrame([]byte("event: first\nevent: second\ndata: x\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Type).To(Equal("second"))
	})

	It("ignores comment lines", func() {
		ev, ok := DecodeFrame([]byte(": this is ignored\ndata: x\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("x"))
	})

	It("ignores unknown field names", func() {
		ev, ok := DecodeFrame([]byte("vendor-ext: whatever\ndata: x\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("x"))
	})

	It("ignores unparsable retry values but keeps the last valid one", func() {
		ev, ok := DecodeFrame([]byte("retry: 250\nretry: soon\ndata: x\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Retry).To(Equal(250))
	})

	It("strips exactly one leading space from the value", func() {
		ev, ok := DecodeFrame([]byte("data:  two spaces\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal(" two spaces"))
	})

	It("treats a value with no leading space verbatim", func() {
		ev, ok := DecodeFrame([]byte("data:tight\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("tight"))
	})

	It("treats a line with no colon as a field with an empty value", func() {
		// A bare "data" line contributes an empty data line.
		ev, ok := DecodeFrame([]byte("data\ndata: x\n\n"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("\nx"))
	})

	It("does not dispatch an event with no data", func() {
		_, ok := DecodeFrame([]byte("event: ping\n\n"))
		Expect(ok).To(BeFalse())
	})

	It("does not dispatch a comment-only frame", func() {
		_, ok := DecodeFrame([]byte(": keep-alive\n\n"))
		Expect(ok).To(BeFalse())
	})

	It("handles carriage-return terminated lines", func() {
		ev, ok := DecodeFrame([]byte("event: tick\rdata: y\r\r"))
		Expect(ok).To(BeTrue())
		Expect(ev.Type).To(Equal("tick"))
		Expect(ev.Data).To(Equal("y"))
	})

	It("handles a final frame with no closing delimiter", func() {
		ev, ok := DecodeFrame([]byte("data: tail"))
		Expect(ok).To(BeTrue())
		Expect(ev.Data).To(Equal("tail"))
	})
})
