// Package header provides header filtering for the ferry proxy.
//
// This proxy sits between a client and an upstream JSON/HTTP API like so:
//
//	Client <--> Proxy <--> Upstream API
//
// and headers are handled accordingly as each leg negotiates host
// identification, framing, and encoding independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// skipRequest is the set of request headers (client --> proxy --> upstream)
// that are not forwarded to the upstream API.
var skipRequest = map[string]struct{}{
	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL. Forwarding the client's Host would confuse virtual-hosted
	// upstreams.
	"Host": {},

	// Accept-Encoding is stripped so the client's encoding negotiation never
	// leaks into the upstream leg. The upstream picks its own encoding and
	// the proxy relays whatever bytes come back.
	"Accept-Encoding": {},
}

// skipResponse is the set of upstream response headers (client <-- proxy <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// The proxy may change framing on the client-facing leg (fasthttp
	// computes its own length or switches to chunked transfer), so the
	// upstream Content-Length cannot be relayed.
	"Content-Length": {},
}

// Handler manages headers between proxy connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context to
// the outgoing http.Request, filtering headers that the proxy should not forward
// to the upstream API.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies response headers from the upstream API
// http.Response to the Fiber context, filtering headers that the proxy should
// not forward back down to the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
