package proxy

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

// newTestProxy creates a Proxy pointed at the given upstream URL with an
// in-memory recorder.
func newTestProxy(upstreamURL string) (*Proxy, *memRecorder) {
	rec := &memRecorder{}
	p, err := New(
		Config{
			ListenAddr:  ":0",
			UpstreamURL: upstreamURL,
		},
		rec,
		nil,
		zap.NewNop(),
	)
	Expect(err).NotTo(HaveOccurred())
	return p, rec
}

var _ = Describe("Buffered relay", func() {
	var (
		p        *Proxy
		rec      *memRecorder
		upstream *httptest.Server
	)

	AfterEach(func() {
		if p != nil {
			p.Close()
			p = nil
		}
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	Context("when upstream returns a gzip-encoded body", func() {
		var compressed []byte

		BeforeEach(func() {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, err := zw.Write([]byte(`{"ok":true}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(zw.Close()).To(Succeed())
			compressed = buf.Bytes()

			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Content-Encoding", "gzip")
				w.WriteHeader(http.StatusOK)
				w.Write(compressed)
			}))
			p, rec = newTestProxy(upstream.URL)
		})

		It("relays the original compressed bytes and audits the decompressed text", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"stream": false}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Encoding")).To(Equal("gzip"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal(compressed))

			// Drain the pool so the exchange record is visible.
			p.Close()
			p = nil

			records := rec.all()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Response.Status).To(Equal(http.StatusOK))
			Expect(records[0].Response.Body).To(Equal(`{"ok":true}`))
			Expect(records[0].Response.Streamed).To(BeFalse())
			Expect(records[0].Inbound.Body).To(Equal(`{"stream": false}`))
		})
	})

	Context("when upstream declares gzip but the body is corrupt", func() {
		const rawBody = `{"ok":true} but certainly not gzip`

		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", "gzip")
				w.WriteHeader(http.StatusOK)
				io.WriteString(w, rawBody)
			}))
			p, rec = newTestProxy(upstream.URL)
		})

		It("still relays the original bytes and audits the raw body", func() {
			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(rawBody))

			// Drain the pool so the exchange record is visible.
			p.Close()
			p = nil

			records := rec.all()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Response.Status).To(Equal(http.StatusOK))
			Expect(records[0].Response.Body).To(Equal(rawBody))
		})
	})

	Context("when upstream returns an error status", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limited"}`))
			}))
			p, rec = newTestProxy(upstream.URL)
		})

		It("relays the status and body unchanged", func() {
			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"error":"rate limited"}`))
		})
	})

	Context("when upstream returns a redirect", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", "https://elsewhere.example/moved")
				w.WriteHeader(http.StatusFound)
			}))
			p, rec = newTestProxy(upstream.URL)
		})

		It("surfaces the raw redirect instead of following it", func() {
			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/chat", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusFound))
			Expect(resp.Header.Get("Location")).To(Equal("https://elsewhere.example/moved"))
		})
	})

	Context("when the upstream is unreachable", func() {
		BeforeEach(func() {
			p, rec = newTestProxy("http://127.0.0.1:1")
		})

		It("fails the exchange with 502", func() {
			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/v1/chat", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("upstream request failed"))
		})
	})

	Context("header filtering on the outbound leg", func() {
		var seen http.Header

		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = r.Header.Clone()
				w.Write([]byte("{}"))
			}))
			p, rec = newTestProxy(upstream.URL)
		})

		It("forwards headers minus the request deny-list", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader("{}"))
			req.Header.Set("Authorization", "Bearer sk-test")
			req.Header.Set("Accept-Encoding", "br")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(seen.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(seen.Get("Accept-Encoding")).To(BeEmpty())
		})
	})
})

var _ = Describe("Streaming relay", func() {
	var (
		p        *Proxy
		rec      *memRecorder
		upstream *httptest.Server
	)

	AfterEach(func() {
		if p != nil {
			p.Close()
			p = nil
		}
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	// serveChunks builds an upstream that writes the given chunks with a
	// flush after each, simulating arbitrary transport fragmentation.
	serveChunks := func(chunks ...string) {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, ok := w.(http.Flusher)
			Expect(ok).To(BeTrue())

			for _, chunk := range chunks {
				io.WriteString(w, chunk)
				flusher.Flush()
			}
		}))
		p, rec = newTestProxy(upstream.URL)
	}

	streamRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"stream": true}`))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	It("re-emits events in decode order across arbitrary chunk splits", func() {
		// Two frames split across three chunks, one split mid-delimiter.
		serveChunks("data: A\n", "\nda", "ta: B\n\n")

		resp, err := p.server.Test(streamRequest(), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("data: A\n\ndata: B\n\n"))
	})

	It("normalizes upstream delimiter variants to \\n\\n", func() {
		serveChunks("data: one\r\n\r\n", "data: two\r\r", "data: three\n\n")

		resp, err := p.server.Test(streamRequest(), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("data: one\n\ndata: two\n\ndata: three\n\n"))
	})

	It("drops events with no data and comment-only frames", func() {
		serveChunks("event: ping\n\n", ": keep-alive\n\n", "data: real\n\n")

		resp, err := p.server.Test(streamRequest(), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("data: real\n\n"))
	})

	It("relays a final frame the upstream never double-terminated", func() {
		serveChunks("data: first\n\n", "data: last\n")

		resp, err := p.server.Test(streamRequest(), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("data: first\n\ndata: last\n\n"))
	})

	It("records the streamed exchange after relay completes", func() {
		serveChunks("data: A\n\n", "data: B\n\n")

		resp, err := p.server.Test(streamRequest(), -1)
		Expect(err).NotTo(HaveOccurred())

		_, err = io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		// Drain the pool so the exchange record is visible.
		p.Close()
		p = nil

		records := rec.all()
		Expect(records).To(HaveLen(1))
		Expect(records[0].Response.Streamed).To(BeTrue())
		Expect(records[0].Response.EventCount).To(Equal(2))
		Expect(records[0].Response.Body).To(Equal("A\nB"))
	})

	Context("when upstream rejects the streaming request", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"bad key"}`))
			}))
			p, rec = newTestProxy(upstream.URL)
		})

		It("surfaces the raw error response buffered", func() {
			resp, err := p.server.Test(streamRequest(), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"error":"bad key"}`))
		})
	})
})
