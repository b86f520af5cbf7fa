// Package worker provides an asynchronous worker pool for persisting exchange
// records through the configured audit.Recorder.
//
// The pool decouples audit writes from the proxy's HTTP hot path so that the
// client-proxy-upstream interaction is fully transparent: a slow or failing
// audit backend can drop records but never delay or fail an exchange.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/harborworks/ferry/pkg/audit"
	"github.com/harborworks/ferry/pkg/utils"
)

// bodyPreviewLen caps the response body excerpt in the recorded-exchange log.
const bodyPreviewLen = 120

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Exchange *audit.Exchange
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Recorder is the audit backend exchange records are written to.
	Recorder audit.Recorder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes audit jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := uint(0); i < c.NumWorkers; i++ {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("audit job queued",
			zap.String("exchange_id", job.Exchange.ID),
		)
		return true
	default:
		p.logger.Error("audit job not queued, queue full, job dropped",
			zap.String("exchange_id", job.Exchange.ID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("audit worker stopped", zap.Uint("worker_id", id))
}

// processJob records one exchange. Recording errors are logged and absorbed;
// they never propagate back to the exchange that produced the record.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if err := p.config.Recorder.Record(ctx, job.Exchange); err != nil {
		p.logger.Error("async audit record failed",
			zap.String("exchange_id", job.Exchange.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("exchange recorded",
		zap.String("exchange_id", job.Exchange.ID),
		zap.Int("status", job.Exchange.Response.Status),
		zap.Bool("streamed", job.Exchange.Response.Streamed),
		zap.String("body_preview", utils.Truncate(job.Exchange.Response.Body, bodyPreviewLen)),
	)
}
