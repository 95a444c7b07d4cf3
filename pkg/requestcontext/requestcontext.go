// Package requestcontext carries per-request metadata through context.Context.
// Middleware populates it once at the edge; services and stores read it without
// re-parsing headers.
package requestcontext

import (
	"context"
	"time"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	clientIPKey
	userAgentKey
	browserFamilyKey
	principalKey
	requestTimeKey
)

// Principal is the authenticated caller identity extracted by the auth
// middleware. Exactly one of UserID or APIKeyID is set for authenticated
// requests; both are empty for anonymous traffic.
type Principal struct {
	UserID   string
	APIKeyID string
}

// WithRequestID stores the request ID for traceability.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID, or "" if none was set.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithClientMetadata stores the resolved client IP and User-Agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIP returns the client IP resolved by the metadata middleware, or "".
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// UserAgent returns the raw User-Agent header value, or "".
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}

// WithBrowserFamily stores the parsed browser family ("Chrome", "Firefox", ...)
// used to enrich audit events.
func WithBrowserFamily(ctx context.Context, family string) context.Context {
	return context.WithValue(ctx, browserFamilyKey, family)
}

// BrowserFamily returns the parsed browser family, or "".
func BrowserFamily(ctx context.Context) string {
	v, _ := ctx.Value(browserFamilyKey).(string)
	return v
}

// WithPrincipal stores the authenticated caller identity.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the authenticated principal and whether one was set.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// UserID returns the authenticated user ID, or "" for anonymous or
// API-key-authenticated requests.
func UserID(ctx context.Context) string {
	p, _ := ctx.Value(principalKey).(Principal)
	return p.UserID
}

// WithNow pins the request wall-clock time. Set once by middleware so every
// window and period computation within a request observes the same instant;
// tests use it to simulate elapsed time.
func WithNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, now)
}

// Now returns the pinned request time, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}
