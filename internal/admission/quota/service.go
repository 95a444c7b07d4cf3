// Package quota manages monthly token metering for billable operations.
//
// Each user has one QuotaPeriod per calendar month, capped by their
// subscription tier. Consume is the authoritative gate: it runs a bounded
// optimistic-concurrency loop against the period record so that concurrent
// consumption can never overdraw the monthly cap. CanPerform is advisory
// only — callers must not perform the paid work unless Consume succeeds.
//
// Usage:
//
//	svc, _ := quota.New(periods, tiers, tables)
//	result, err := svc.Consume(ctx, userID, models.OpScreenshot, 1)
//	if err != nil {
//	    // Storage failure: fail closed, do not run the operation
//	}
//	if !result.Success {
//	    // Out of tokens: surface result.Message as an upgrade prompt
//	}
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	admissionconfig "auditgate/internal/admission/config"
	"auditgate/internal/admission/metrics"
	"auditgate/internal/admission/models"
	"auditgate/internal/admission/observability"
	"auditgate/internal/admission/store"
	"auditgate/internal/admission/tier"
	"auditgate/internal/admission/tracer"
	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/requestcontext"
)

// defaultRetryBudget bounds the CompareAndPut loop in Consume and
// UpdateLimitsForTier. Conflicts within the budget are invisible to callers;
// exhaustion surfaces as CodeUnavailable so the gated operation fails closed.
const defaultRetryBudget = 5

// maxHistoryMonths caps how far back UsageHistory walks.
const maxHistoryMonths = 24

// PeriodStore persists quota periods. Satisfied by store.Store.
type PeriodStore interface {
	Get(ctx context.Context, key string) (*store.Record, error)
	CompareAndPut(ctx context.Context, key string, value any, expectedVersion int64) error
	Delete(ctx context.Context, key string) error
}

// Service meters token consumption against tiered monthly caps.
type Service struct {
	periods        PeriodStore
	tiers          tier.Resolver
	config         *admissionconfig.Config
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         tracer.Tracer
	auditPublisher observability.AuditPublisher
	retryBudget    int
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

// WithAuditPublisher sets the audit event publisher for billing logging.
func WithAuditPublisher(publisher observability.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithRetryBudget overrides the CompareAndPut retry budget.
func WithRetryBudget(n int) Option {
	return func(s *Service) {
		s.retryBudget = n
	}
}

// New creates a quota service with the given store, tier resolver, and
// admission tables.
func New(periods PeriodStore, tiers tier.Resolver, cfg *admissionconfig.Config, opts ...Option) (*Service, error) {
	if periods == nil {
		return nil, errors.New("period store is required")
	}
	if tiers == nil {
		return nil, errors.New("tier resolver is required")
	}
	if cfg == nil {
		return nil, errors.New("admission config is required")
	}

	svc := &Service{
		periods:     periods,
		tiers:       tiers,
		config:      cfg,
		tracer:      tracer.NewNoop(),
		retryBudget: defaultRetryBudget,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// TokenLimit returns the monthly token cap for a tier, -1 meaning unlimited.
// Unknown tiers default to the free cap.
func (s *Service) TokenLimit(t models.Tier) int {
	return s.config.TokenLimit(t)
}

// Balance returns a read-only snapshot of the user's current-month quota.
// A missing period record implies zero consumption.
func (s *Service) Balance(ctx context.Context, userID string) (*models.Balance, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}

	now := requestcontext.Now(ctx)
	period, _, err := s.currentPeriod(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	start, end := models.PeriodBounds(now)
	return &models.Balance{
		TokensUsed:      period.TokensUsed,
		TokensLimit:     period.TokensLimit,
		TokensRemaining: period.Remaining(),
		IsUnlimited:     period.IsUnlimited(),
		Tier:            period.Tier,
		PeriodStart:     start,
		PeriodEnd:       end,
		Operations:      copyOperations(period.Operations),
	}, nil
}

// CanPerform reports whether the user could afford an operation right now.
// Advisory only and non-mutating: the answer may be stale by the time the
// caller acts on it. Only Consume's outcome is authoritative.
func (s *Service) CanPerform(ctx context.Context, userID, operation string) (*models.CanPerformResult, error) {
	cost, ok := s.config.Cost(operation)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown operation %q", operation))
	}

	now := requestcontext.Now(ctx)
	period, _, err := s.currentPeriod(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if period.IsUnlimited() {
		return &models.CanPerformResult{
			Allowed:         true,
			TokensRequired:  cost,
			TokensRemaining: models.UnlimitedTokens,
		}, nil
	}

	remaining := period.Remaining()
	if remaining < cost {
		return &models.CanPerformResult{
			Allowed:         false,
			TokensRequired:  cost,
			TokensRemaining: remaining,
			Message:         insufficientTokensMessage(cost, remaining),
		}, nil
	}

	return &models.CanPerformResult{
		Allowed:         true,
		TokensRequired:  cost,
		TokensRemaining: remaining,
	}, nil
}

// Consume atomically charges the user for an operation. The required cost is
// the operation's token cost times multiplier. Denial for insufficient tokens
// is a normal result, not an error; errors mean the budget could not be
// verified and the caller must fail closed.
//
// Under any interleaving of concurrent calls for the same user, the sum of
// successful consumption in a month never exceeds the period's cap.
func (s *Service) Consume(ctx context.Context, userID, operation string, multiplier int) (result *models.ConsumeResult, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanQuotaConsume,
		tracer.String(tracer.AttrOperation, operation),
		tracer.Int(tracer.AttrMultiplier, multiplier),
	)
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveConsumeDuration(time.Since(started).Seconds())
		}
		span.End(err)
	}()

	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}
	if multiplier <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "multiplier must be positive")
	}
	cost, ok := s.config.Cost(operation)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown operation %q", operation))
	}
	required := cost * multiplier

	now := requestcontext.Now(ctx)
	key := models.PeriodKey(userID, now.Year(), now.Month())

	for attempt := 0; attempt < s.retryBudget; attempt++ {
		period, version, err := s.currentPeriod(ctx, userID, now)
		if err != nil {
			return nil, err
		}

		if !period.IsUnlimited() && period.TokensUsed+required > period.TokensLimit {
			s.recordConsume(operation, "denied")
			observability.LogAudit(ctx, s.logger, s.auditPublisher, "quota_exceeded",
				"user_id", userID,
				"operation", operation,
				"tokens_required", required,
				"tokens_remaining", period.Remaining(),
				"tier", period.Tier.String(),
			)
			return &models.ConsumeResult{
				Success:        false,
				TokensConsumed: 0,
				NewBalance:     period.Remaining(),
				Message:        insufficientTokensMessage(required, period.Remaining()),
			}, nil
		}

		next := period.Clone()
		next.TokensUsed += required
		next.Operations[operation] += multiplier
		next.LastUsedAt = now
		next.UpdatedAt = now

		err = s.periods.CompareAndPut(ctx, key, next, version)
		if err == nil {
			span.SetAttributes(
				tracer.Int(tracer.AttrTokens, required),
				tracer.Int(tracer.AttrRetries, attempt),
			)
			s.recordConsume(operation, "success")
			if s.metrics != nil {
				s.metrics.RecordTokensConsumed(operation, required)
			}
			return &models.ConsumeResult{
				Success:        true,
				TokensConsumed: required,
				NewBalance:     next.Remaining(),
			}, nil
		}
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			// Another consume landed first; re-read and try again.
			if s.metrics != nil {
				s.metrics.RecordConsumeConflict()
			}
			continue
		}
		s.recordConsume(operation, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write quota period")
	}

	s.recordConsume(operation, "error")
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "token consumption retry budget exhausted",
			"user_id", userID,
			"operation", operation,
			"attempts", s.retryBudget,
		)
	}
	return nil, dErrors.New(dErrors.CodeUnavailable, "token consumption retry budget exhausted")
}

// UsageHistory returns per-month rollups walking back the given number of
// calendar months from now, newest first. Months with no stored period
// default to zero consumption at the free cap.
func (s *Service) UsageHistory(ctx context.Context, userID string, months int) ([]models.UsagePeriod, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}
	if months <= 0 {
		months = 6
	}
	if months > maxHistoryMonths {
		months = maxHistoryMonths
	}

	now := requestcontext.Now(ctx)
	// Anchor at the first of the month so AddDate never normalizes across
	// short months.
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	history := make([]models.UsagePeriod, 0, months)
	for i := 0; i < months; i++ {
		month := anchor.AddDate(0, -i, 0)
		key := models.PeriodKey(userID, month.Year(), month.Month())

		rec, err := s.periods.Get(ctx, key)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read quota period")
		}

		entry := models.UsagePeriod{
			Period:      fmt.Sprintf("%04d-%02d", month.Year(), int(month.Month())),
			TokensLimit: s.config.TokenLimit(models.TierFree),
			Operations:  map[string]int{},
		}
		if rec != nil {
			period := rec.Value.(*models.QuotaPeriod)
			entry.TokensUsed = period.TokensUsed
			entry.TokensLimit = period.TokensLimit
			entry.Operations = copyOperations(period.Operations)
		}
		history = append(history, entry)
	}

	return history, nil
}

// ResetUsage deletes the current month's period record (admin/test only).
func (s *Service) ResetUsage(ctx context.Context, userID string) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}

	now := requestcontext.Now(ctx)
	key := models.PeriodKey(userID, now.Year(), now.Month())
	if err := s.periods.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset quota period")
	}

	observability.LogAudit(ctx, s.logger, s.auditPublisher, "quota_reset",
		"user_id", userID,
	)
	return nil
}

// UpdateLimitsForTier merges a new tier and its cap into the current month's
// period without resetting consumption: a mid-month tier change adjusts the
// ceiling and preserves usage to date.
func (s *Service) UpdateLimitsForTier(ctx context.Context, userID string, t models.Tier) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "user_id is required")
	}
	if !t.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid tier")
	}

	now := requestcontext.Now(ctx)
	key := models.PeriodKey(userID, now.Year(), now.Month())
	limit := s.config.TokenLimit(t)

	for attempt := 0; attempt < s.retryBudget; attempt++ {
		rec, err := s.periods.Get(ctx, key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read quota period")
		}

		var next *models.QuotaPeriod
		version := store.VersionAbsent
		if rec == nil {
			next, err = models.NewQuotaPeriod(userID, now.Year(), now.Month(), t, limit, now)
			if err != nil {
				return err
			}
		} else {
			next = rec.Value.(*models.QuotaPeriod).Clone()
			next.Tier = t
			next.TokensLimit = limit
			next.UpdatedAt = now
			version = rec.Version
		}

		err = s.periods.CompareAndPut(ctx, key, next, version)
		if err == nil {
			observability.LogAudit(ctx, s.logger, s.auditPublisher, "quota_tier_updated",
				"user_id", userID,
				"tier", t.String(),
				"tokens_limit", limit,
			)
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			continue
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to write quota period")
	}

	return dErrors.New(dErrors.CodeUnavailable, "tier update retry budget exhausted")
}

// currentPeriod reads the user's period for the month containing now,
// materializing an unsaved zero-usage period (with the record version to CAS
// against) when none is stored. Tier resolution failures propagate so gated
// operations fail closed.
func (s *Service) currentPeriod(ctx context.Context, userID string, now time.Time) (*models.QuotaPeriod, int64, error) {
	key := models.PeriodKey(userID, now.Year(), now.Month())

	rec, err := s.periods.Get(ctx, key)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read quota period")
	}
	if rec != nil {
		return rec.Value.(*models.QuotaPeriod), rec.Version, nil
	}

	t, err := s.tiers.ResolveTier(ctx, userID)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to resolve tier")
	}
	period, err := models.NewQuotaPeriod(userID, now.Year(), now.Month(), t, s.config.TokenLimit(t), now)
	if err != nil {
		return nil, 0, err
	}
	return period, store.VersionAbsent, nil
}

func (s *Service) recordConsume(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordConsume(operation, outcome)
	}
}

func insufficientTokensMessage(required, available int) string {
	return fmt.Sprintf(
		"Insufficient tokens. Required: %d, Available: %d. Upgrade your plan for more tokens.",
		required, available,
	)
}

func copyOperations(ops map[string]int) map[string]int {
	out := make(map[string]int, len(ops))
	for k, v := range ops {
		out[k] = v
	}
	return out
}
