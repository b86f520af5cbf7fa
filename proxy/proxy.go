// Package proxy provides a transparent forwarding proxy for a JSON/HTTP API
// that keeps an audit trail of every exchange.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harborworks/ferry/pkg/allowlist"
	"github.com/harborworks/ferry/pkg/audit"
	"github.com/harborworks/ferry/pkg/decompress"
	"github.com/harborworks/ferry/pkg/sse"
	"github.com/harborworks/ferry/proxy/header"
	"github.com/harborworks/ferry/proxy/worker"
)

// errorResponse is the JSON error shape returned to the inbound caller when
// the proxy itself fails an exchange.
type errorResponse struct {
	Error string `json:"error"`
}

// Proxy is a transparent forwarding proxy. It relays requests to the upstream
// API verbatim, decides per exchange between buffered and event-stream relay,
// and enqueues an audit record for every exchange via its worker pool.
type Proxy struct {
	config        Config
	recorder      audit.Recorder
	workerPool    *worker.Pool
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Proxy.
// The recorder is injected to handle async persistence of exchange records;
// gate may be nil to disable caller filtering.
func New(config Config, recorder audit.Recorder, gate *allowlist.Gate, logger *zap.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	config.UpstreamURL = strings.TrimSuffix(config.UpstreamURL, "/")

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Reject non-allowed callers before any forwarding happens.
	if gate != nil {
		app.Use(gate.Middleware(logger))
	}

	wp, err := worker.NewPool(&worker.Config{
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		config:        config,
		recorder:      recorder,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// Upstream streamed responses can be long-lived
			Timeout: 5 * time.Minute,
			// Redirects are surfaced to the inbound caller raw, never
			// auto-followed, on both the buffered and streaming paths.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			// The relayed body must keep the upstream's Content-Encoding
			// byte-for-byte, so the transport must not negotiate and strip
			// its own compression.
			Transport: &http.Transport{
				DisableCompression: true,
			},
		},
	}

	// Register transparent proxy route - forwards any path to upstream
	app.All("/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// handleProxy is a transparent proxy handler that forwards requests to
// upstream and records the exchange.
func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	startTime := time.Now()

	body := c.Body()
	outboundURL := p.config.UpstreamURL + c.OriginalURL()

	ex := &audit.Exchange{
		SchemaVersion: audit.SchemaVersionV1,
		ID:            uuid.NewString(),
		CallerAddr:    c.IP(),
		StartedAt:     startTime,
		Inbound: audit.RequestInfo{
			Method:  c.Method(),
			URL:     c.BaseURL() + c.OriginalURL(),
			Headers: inboundHeaders(c),
			Body:    audit.SanitizeBody(body),
		},
	}

	// The streaming decision is made once, before the outbound request is
	// sent, and fixes the relay mode for the whole exchange.
	if detectStreaming(body) {
		return p.handleStreamingProxy(c, ex, outboundURL, body, startTime)
	}

	return p.handleBufferedProxy(c, ex, outboundURL, body, startTime)
}

// detectStreaming sniffs the inbound body for a boolean "stream" property.
// This is best-effort by design: a body that is not a JSON object, or that
// has no such property, resolves to non-streaming rather than an error.
func detectStreaming(body []byte) bool {
	var streamCheck struct {
		Stream *bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &streamCheck); err != nil || streamCheck.Stream == nil {
		return false
	}
	return *streamCheck.Stream
}

// handleBufferedProxy relays a non-streaming exchange: the upstream body is
// read in full and returned to the caller unchanged, still carrying its
// original Content-Encoding. Only the audit copy is decompressed.
func (p *Proxy) handleBufferedProxy(c *fiber.Ctx, ex *audit.Exchange, outboundURL string, body []byte, startTime time.Time) error {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(c.Context(), c.Method(), outboundURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)
	ex.Outbound = outboundInfo(httpReq)

	p.logger.Debug("forwarding request to upstream",
		zap.String("method", httpReq.Method),
		zap.String("url", outboundURL),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "failed to read upstream response"})
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	p.recordBuffered(ex, httpResp, respBody, startTime)

	// Return the original, still-encoded bytes to the client immediately
	return c.Status(httpResp.StatusCode).Send(respBody)
}

// recordBuffered fills in the response half of the exchange record with a
// decompressed body copy and enqueues it. A corrupt body for the declared
// encoding degrades the audit copy, never the relay.
func (p *Proxy) recordBuffered(ex *audit.Exchange, httpResp *http.Response, respBody []byte, startTime time.Time) {
	auditBody := respBody
	encoding := httpResp.Header.Get("Content-Encoding")
	if decoded, err := decompress.Decode(encoding, respBody); err != nil {
		p.logger.Warn("failed to decompress response body for audit",
			zap.String("content_encoding", encoding),
			zap.Error(err),
		)
	} else {
		auditBody = decoded
	}

	completed := time.Now()
	ex.CompletedAt = completed
	ex.DurationMs = completed.Sub(startTime).Milliseconds()
	ex.Response = audit.ResponseInfo{
		Status:  httpResp.StatusCode,
		Headers: responseHeaders(httpResp),
		Body:    audit.SanitizeBody(auditBody),
	}

	p.workerPool.Enqueue(worker.Job{Exchange: ex})
}

// handleStreamingProxy relays a streaming exchange: the upstream body is fed
// through the frame/event pipeline and each decoded event is re-emitted to
// the caller as it arrives.
func (p *Proxy) handleStreamingProxy(c *fiber.Ctx, ex *audit.Exchange, outboundURL string, body []byte, startTime time.Time) error {
	// Use context.Background() instead of c.Context() because fasthttp
	// recycles its RequestCtx after the handler returns, but the relay runs
	// asynchronously in a separate goroutine and needs the upstream
	// connection to remain open.
	httpReq, err := http.NewRequestWithContext(context.Background(), c.Method(), outboundURL, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)
	ex.Outbound = outboundInfo(httpReq)

	p.logger.Debug("forwarding streaming request to upstream",
		zap.String("url", outboundURL),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}

	// Anything but 200 — errors and unfollowed redirects included — is
	// surfaced to the caller raw and buffered.
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			p.logger.Error("failed to read upstream response", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "failed to read upstream response"})
		}

		p.logger.Warn("upstream refused streaming request",
			zap.Int("status", httpResp.StatusCode),
		)

		p.headerHandler.SetClientResponseHeaders(c, httpResp)
		p.recordBuffered(ex, httpResp, respBody, startTime)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter uses an internal PipeConns with a buffered channel
	// and two bufio.Writers, which means Flush() in the callback only pushes
	// data into the pipe — NOT to the TCP socket, so events would buffer in
	// memory instead of reaching the caller as they are decoded.
	//
	// With io.Pipe, pw.Write blocks until the reader consumes the data, and
	// the reader is fasthttp's writeBodyChunked which flushes to TCP after
	// every chunk. This gives direct backpressure and true per-event relay.
	pr, pw := io.Pipe()
	go p.relayEvents(httpResp, pw, ex, startTime)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// relayEvents runs the Framer -> decoder pipeline over the upstream body,
// re-serializing every dispatched event as "data: <data>\n\n" and forwarding
// it immediately. Events reach the caller in decode order, unbatched.
func (p *Proxy) relayEvents(httpResp *http.Response, pw *io.PipeWriter, ex *audit.Exchange, startTime time.Time) {
	// Close the upstream response body once streaming is complete.
	defer httpResp.Body.Close()
	defer pw.Close()

	var relayed strings.Builder
	eventCount := 0

	r := sse.NewReader(httpResp.Body)
	for {
		ev, err := r.Next()
		if err != nil {
			p.logger.Error("error reading upstream event stream", zap.Error(err))
			break
		}
		if ev == nil {
			break
		}

		// pw.Write blocks until the caller consumes the event; a failed
		// write means the caller disconnected and the exchange unwinds.
		if _, err := io.WriteString(pw, "data: "+ev.Data+"\n\n"); err != nil {
			p.logger.Error("error writing event to caller", zap.Error(err))
			break
		}

		if eventCount > 0 {
			relayed.WriteString("\n")
		}
		relayed.WriteString(ev.Data)
		eventCount++
	}

	completed := time.Now()
	ex.CompletedAt = completed
	ex.DurationMs = completed.Sub(startTime).Milliseconds()
	ex.Response = audit.ResponseInfo{
		Status:     httpResp.StatusCode,
		Headers:    responseHeaders(httpResp),
		Body:       audit.SanitizeBody([]byte(relayed.String())),
		Streamed:   true,
		EventCount: eventCount,
	}

	p.logger.Debug("streaming complete",
		zap.String("exchange_id", ex.ID),
		zap.Int("event_count", eventCount),
		zap.Duration("duration", completed.Sub(startTime)),
	)

	p.workerPool.Enqueue(worker.Job{Exchange: ex})
}

// inboundHeaders snapshots the inbound request headers for the audit record.
func inboundHeaders(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	return headers
}

// outboundInfo snapshots the outbound request as it was actually sent.
func outboundInfo(req *http.Request) audit.RequestInfo {
	headers := make(map[string]string, len(req.Header))
	for k, v := range req.Header {
		headers[k] = strings.Join(v, ", ")
	}
	return audit.RequestInfo{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: headers,
	}
}

// responseHeaders snapshots the upstream response headers for the audit record.
func responseHeaders(resp *http.Response) map[string]string {
	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}
	return headers
}
