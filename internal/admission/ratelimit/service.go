// Package ratelimit provides fixed-window request limiting per client
// identity.
//
// This is the advisory half of admission control: a cheap per-request counter
// bounding burst traffic. Counters tolerate eventual consistency — a brief
// overcount under extreme concurrency is an accepted trade-off for this
// low-stakes budget. The authoritative budget is the quota ledger.
//
// Usage:
//
//	svc, _ := ratelimit.New(windows, ratelimit.PresetConfig(tables, "api"))
//	result, _ := svc.CheckKey(ctx, identity.Identify(r))
//	if !result.Allowed {
//	    // Return 429 Too Many Requests
//	}
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	admissionconfig "auditgate/internal/admission/config"
	"auditgate/internal/admission/identity"
	"auditgate/internal/admission/metrics"
	"auditgate/internal/admission/models"
	"auditgate/internal/admission/observability"
	"auditgate/internal/admission/store"
	"auditgate/internal/admission/tracer"
	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/privacy"
	"auditgate/pkg/requestcontext"
)

// WindowStore persists rate windows. Satisfied by store.Store.
type WindowStore interface {
	Get(ctx context.Context, key string) (*store.Record, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Config holds one limiter's parameters, defaulted from a named preset.
type Config struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// PresetConfig builds a limiter Config from a named preset in the admission
// tables. The preset name doubles as the key prefix so limiters sharing a
// store never share counters.
func PresetConfig(tables *admissionconfig.Config, name string) Config {
	p := tables.Preset(name)
	return Config{Limit: p.Limit, Window: p.Window, KeyPrefix: name}
}

// Service enforces a fixed-window request limit per client identity.
// Thread-safe for concurrent use by HTTP middleware.
type Service struct {
	windows        WindowStore
	config         Config
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         tracer.Tracer
	auditPublisher observability.AuditPublisher
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit and debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder for observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for distributed tracing.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithAuditPublisher sets the audit event publisher for security logging.
func WithAuditPublisher(publisher observability.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// New creates a rate limiting service with the given window store and config.
func New(windows WindowStore, cfg Config, opts ...Option) (*Service, error) {
	if windows == nil {
		return nil, errors.New("window store is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be positive")
	}
	if cfg.KeyPrefix == "" {
		return nil, errors.New("key prefix is required")
	}

	svc := &Service{
		windows: windows,
		config:  cfg,
		tracer:  tracer.NewNoop(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Check resolves the request's client identity and checks its window.
func (s *Service) Check(ctx context.Context, r *http.Request) (*models.RateLimitResult, error) {
	return s.CheckKey(ctx, identity.Identify(r))
}

// CheckKey checks and advances the window for an already-resolved identity.
//
// Fixed-window algorithm: an expired or absent window is replaced whole with
// {windowStart: now, count: 1}; within a current window the count increments
// until it reaches the limit, after which requests are denied until the
// window rolls over. The denied attempt itself is never stored.
func (s *Service) CheckKey(ctx context.Context, identityKey string) (result *models.RateLimitResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRateCheck,
		tracer.String(tracer.AttrPreset, s.config.KeyPrefix),
	)
	defer func() {
		if result != nil {
			span.SetAttributes(tracer.Bool(tracer.AttrAllowed, result.Allowed))
		}
		span.End(err)
	}()

	now := requestcontext.Now(ctx)
	key := models.NewWindowKey(s.config.KeyPrefix, identityKey).String()

	rec, err := s.windows.Get(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read rate window")
	}

	var window *models.RateWindow
	if rec != nil {
		window = rec.Value.(*models.RateWindow)
	}

	// New or expired window: replace whole, never merge.
	if window == nil || window.Expired(now, s.config.Window) {
		fresh := &models.RateWindow{
			Key:         key,
			WindowStart: now,
			Count:       1,
			LastRequest: now,
		}
		if err := s.windows.Put(ctx, key, fresh); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write rate window")
		}
		return s.record(&models.RateLimitResult{
			Allowed:   true,
			Limit:     s.config.Limit,
			Remaining: s.config.Limit - 1,
			ResetAt:   now.Add(s.config.Window),
		}), nil
	}

	resetAt := window.WindowStart.Add(s.config.Window)

	if window.Count >= s.config.Limit {
		observability.LogAudit(ctx, s.logger, s.auditPublisher, "rate_limit_exceeded",
			"identifier", anonymizeIdentity(identityKey),
			"preset", s.config.KeyPrefix,
			"limit", s.config.Limit,
			"window_seconds", int(s.config.Window.Seconds()),
		)
		return s.record(&models.RateLimitResult{
			Allowed:    false,
			Limit:      s.config.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt, now),
		}), nil
	}

	// Advance the counter. The unconditional write accepts a lost increment
	// under a concurrent race; this counter is advisory.
	next := &models.RateWindow{
		Key:         key,
		WindowStart: window.WindowStart,
		Count:       window.Count + 1,
		LastRequest: now,
	}
	if err := s.windows.Put(ctx, key, next); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write rate window")
	}

	return s.record(&models.RateLimitResult{
		Allowed:   true,
		Limit:     s.config.Limit,
		Remaining: s.config.Limit - next.Count,
		ResetAt:   resetAt,
	}), nil
}

// Reset clears the window for an identity (admin/test operation).
func (s *Service) Reset(ctx context.Context, identityKey string) error {
	key := models.NewWindowKey(s.config.KeyPrefix, identityKey).String()
	if err := s.windows.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset rate window")
	}
	return nil
}

// Status returns the stored window for an identity, or nil if none exists.
func (s *Service) Status(ctx context.Context, identityKey string) (*models.RateWindow, error) {
	key := models.NewWindowKey(s.config.KeyPrefix, identityKey).String()
	rec, err := s.windows.Get(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read rate window")
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Value.(*models.RateWindow), nil
}

// Preset returns the preset name this limiter was configured from.
func (s *Service) Preset() string {
	return s.config.KeyPrefix
}

func (s *Service) record(result *models.RateLimitResult) *models.RateLimitResult {
	if s.metrics != nil {
		s.metrics.RecordRateLimitDecision(s.config.KeyPrefix, result.Allowed)
	}
	return result
}

// retryAfterSeconds computes ceil((resetAt-now)/1s), floored at 1 so clients
// never receive Retry-After: 0 while denied.
func retryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// anonymizeIdentity strips host bits from ip identities before logging.
// Authenticated identities pass through; they are pseudonymous already.
func anonymizeIdentity(identityKey string) string {
	if ip, ok := strings.CutPrefix(identityKey, identity.PrefixIP); ok {
		return identity.PrefixIP + privacy.AnonymizeIP(ip)
	}
	return identityKey
}
