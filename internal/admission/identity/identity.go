// Package identity resolves a stable client identity key from request
// context. The resolution order is a contract the rate limiter and quota
// ledger depend on for counter partitioning — changing it re-buckets every
// stored counter, so it must not silently change.
package identity

import (
	"net/http"
	"net/netip"
	"strings"

	"auditgate/pkg/requestcontext"
)

// Identity key prefixes. The prefix keeps authenticated and network
// identities in disjoint key spaces.
const (
	PrefixUser = "user:"
	PrefixKey  = "key:"
	PrefixIP   = "ip:"
)

// Unknown is the fallback identity when no source yields an address.
const Unknown = PrefixIP + "unknown"

// maxHeaderLength bounds forwarded-address headers to prevent header
// injection from inflating keys.
const maxHeaderLength = 500

// Identify resolves the identity key for a request. Precedence, first match
// wins:
//
//  1. authenticated user id     -> "user:<id>"
//  2. authenticated API-key id  -> "key:<id>"
//  3. CF-Connecting-IP header   -> "ip:<addr>"
//  4. first hop of X-Forwarded-For (comma-split, trimmed) -> "ip:<addr>"
//  5. X-Real-IP header          -> "ip:<addr>"
//  6. fallback                  -> "ip:unknown"
//
// Header values that are oversized or not valid IP addresses fall through to
// the next source.
func Identify(r *http.Request) string {
	if p, ok := requestcontext.GetPrincipal(r.Context()); ok {
		if p.UserID != "" {
			return PrefixUser + p.UserID
		}
		if p.APIKeyID != "" {
			return PrefixKey + p.APIKeyID
		}
	}

	if ip := headerIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return PrefixIP + ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && len(xff) <= maxHeaderLength {
		first := xff
		if before, _, ok := strings.Cut(xff, ","); ok {
			first = before
		}
		if ip := headerIP(first); ip != "" {
			return PrefixIP + ip
		}
	}

	if ip := headerIP(r.Header.Get("X-Real-IP")); ip != "" {
		return PrefixIP + ip
	}

	return Unknown
}

// headerIP validates a single header value as an IP address, returning the
// trimmed value or "" if it cannot be used.
func headerIP(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxHeaderLength {
		return ""
	}
	if _, err := netip.ParseAddr(value); err != nil {
		return ""
	}
	return value
}
