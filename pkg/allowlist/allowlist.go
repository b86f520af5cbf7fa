// Package allowlist gates inbound exchanges by caller network address.
// Non-allowed callers are rejected before any forwarding happens.
package allowlist

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Gate holds the set of allowed caller addresses. Rules may be single
// addresses ("203.0.113.7") or CIDR prefixes ("10.0.0.0/8"). Rules given at
// construction are permanent; a second, file-derived set is swappable at
// runtime so a watched allowlist file can reload without restarting the
// proxy or discarding the constructed rules.
type Gate struct {
	mu      sync.RWMutex
	static  []netip.Prefix
	dynamic []netip.Prefix
}

// New creates a Gate from the given rules.
func New(rules []string) (*Gate, error) {
	prefixes, err := ParseRules(rules)
	if err != nil {
		return nil, err
	}
	return &Gate{static: prefixes}, nil
}

// ParseRules parses address and CIDR rules into prefixes. A bare address
// becomes a single-address prefix.
func ParseRules(rules []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(rules))
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}

		if strings.Contains(rule, "/") {
			p, err := netip.ParsePrefix(rule)
			if err != nil {
				return nil, fmt.Errorf("parsing allowlist rule %q: %w", rule, err)
			}
			prefixes = append(prefixes, p)
			continue
		}

		addr, err := netip.ParseAddr(rule)
		if err != nil {
			return nil, fmt.Errorf("parsing allowlist rule %q: %w", rule, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Replace swaps the file-derived rule set atomically. Rules given at
// construction are unaffected, so a file reload can never revoke them.
func (g *Gate) Replace(prefixes []netip.Prefix) {
	g.mu.Lock()
	g.dynamic = prefixes
	g.mu.Unlock()
}

// Allows reports whether the caller address is allowed by either rule set.
// Addresses that fail to parse are never allowed.
func (g *Gate) Allows(callerAddr string) bool {
	addr, err := netip.ParseAddr(callerAddr)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, p := range g.static {
		if p.Contains(addr) {
			return true
		}
	}
	for _, p := range g.dynamic {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware returns a fiber handler that rejects non-allowed callers with
// 403 before the request reaches the proxy handler.
func (g *Gate) Middleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if g.Allows(c.IP()) {
			return c.Next()
		}

		logger.Warn("rejected caller not on allowlist",
			zap.String("caller", c.IP()),
			zap.String("path", c.Path()),
		)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "forbidden",
		})
	}
}
