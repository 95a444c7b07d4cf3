package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"auditgate/pkg/requestcontext"
)

// ClientMetadata resolves the client IP, raw User-Agent, and parsed browser
// family once at the edge and stores them in the request context. Audit
// events and logs read them from there instead of re-parsing headers.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), getClientIP(r), ua)
		if family := browserFamily(ua); family != "" {
			ctx = requestcontext.WithBrowserFamily(ctx, family)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getClientIP resolves the originating client IP. Proxy headers win over the
// socket address: the first hop of X-Forwarded-For, then X-Real-IP, then
// RemoteAddr with its port stripped.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// RemoteAddr is host:port; keep IPv6 brackets intact.
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 && !strings.HasSuffix(addr, "]") {
		return addr[:idx]
	}
	return addr
}

// browserFamily extracts the browser name from a User-Agent string, or "".
func browserFamily(uaString string) string {
	if uaString == "" {
		return ""
	}
	name, _ := useragent.New(uaString).Browser()
	return strings.TrimSpace(name)
}
