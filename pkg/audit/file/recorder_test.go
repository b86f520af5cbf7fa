package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/harborworks/ferry/pkg/audit"
	"github.com/harborworks/ferry/pkg/audit/file"
)

var _ = Describe("Recorder", func() {
	var (
		tmpDir string
		path   string
		r      *file.Recorder
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "audit-file-test-*")
		Expect(err).NotTo(HaveOccurred())
		path = filepath.Join(tmpDir, "audit.log")

		r, err = file.NewRecorder(path)
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
	})

	AfterEach(func() {
		r.Close()
		os.RemoveAll(tmpDir)
	})

	newExchange := func(id string) *audit.Exchange {
		now := time.Now().UTC()
		return &audit.Exchange{
			SchemaVersion: audit.SchemaVersionV1,
			ID:            id,
			CallerAddr:    "203.0.113.7",
			StartedAt:     now,
			CompletedAt:   now.Add(120 * time.Millisecond),
			DurationMs:    120,
			Inbound: audit.RequestInfo{
				Method: "POST",
				URL:    "http://localhost:9000/v1/chat",
				Body:   `{"stream": false}`,
			},
			Outbound: audit.RequestInfo{
				Method: "POST",
				URL:    "https://api.openai.com/v1/chat",
			},
			Response: audit.ResponseInfo{
				Status: 200,
				Body:   `{"ok":true}`,
			},
		}
	}

	It("appends one JSON line per exchange", func() {
		Expect(r.Record(ctx, newExchange("ex-1"))).To(Succeed())
		Expect(r.Record(ctx, newExchange("ex-2"))).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		Expect(lines).To(HaveLen(2))

		var got audit.Exchange
		Expect(json.Unmarshal([]byte(lines[0]), &got)).To(Succeed())
		Expect(got.ID).To(Equal("ex-1"))
		Expect(got.Response.Status).To(Equal(200))
		Expect(got.Response.Body).To(Equal(`{"ok":true}`))
	})

	It("appends to an existing log across recorders", func() {
		Expect(r.Record(ctx, newExchange("ex-1"))).To(Succeed())
		Expect(r.Close()).To(Succeed())

		reopened, err := file.NewRecorder(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(reopened.Record(ctx, newExchange("ex-2"))).To(Succeed())
		Expect(reopened.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Count(string(data), "\n")).To(Equal(2))

		// Reset r so AfterEach's Close is harmless.
		r, err = file.NewRecorder(path)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects nil exchanges", func() {
		Expect(r.Record(ctx, nil)).To(MatchError(audit.ErrNilExchange))
	})
})
