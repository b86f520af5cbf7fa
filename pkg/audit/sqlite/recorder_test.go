package sqlite_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/harborworks/ferry/pkg/audit"
	"github.com/harborworks/ferry/pkg/audit/sqlite"
)

var _ = Describe("Recorder", func() {
	var (
		r   *sqlite.Recorder
		ctx context.Context
	)

	BeforeEach(func() {
		var err error
		r, err = sqlite.NewRecorder(":memory:", zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		r.Close()
	})

	It("requires a database path", func() {
		_, err := sqlite.NewRecorder("", zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("stores exchange rows", func() {
		now := time.Now().UTC()
		ex := &audit.Exchange{
			SchemaVersion: audit.SchemaVersionV1,
			ID:            "ex-1",
			CallerAddr:    "203.0.113.7",
			StartedAt:     now,
			CompletedAt:   now,
			Inbound: audit.RequestInfo{
				Method:  "POST",
				URL:     "http://localhost:9000/v1/chat",
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    `{"stream": true}`,
			},
			Outbound: audit.RequestInfo{
				Method: "POST",
				URL:    "https://api.openai.com/v1/chat",
			},
			Response: audit.ResponseInfo{
				Status:     200,
				Body:       "A\nB",
				Streamed:   true,
				EventCount: 2,
			},
		}

		Expect(r.Record(ctx, ex)).To(Succeed())

		n, err := r.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("rejects duplicate exchange IDs", func() {
		now := time.Now().UTC()
		ex := &audit.Exchange{ID: "ex-dup", StartedAt: now, CompletedAt: now}

		Expect(r.Record(ctx, ex)).To(Succeed())
		Expect(r.Record(ctx, ex)).NotTo(Succeed())
	})

	It("rejects nil exchanges", func() {
		Expect(r.Record(ctx, nil)).To(MatchError(audit.ErrNilExchange))
	})
})
