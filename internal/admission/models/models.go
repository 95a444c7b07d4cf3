package models

import (
	"fmt"
	"time"

	dErrors "auditgate/pkg/domain-errors"
)

// UnlimitedTokens marks a tier with no monthly cap.
const UnlimitedTokens = -1

// Tier is a subscription level determining the monthly token cap.
type Tier string

const (
	TierFree       Tier = "free"
	TierUser       Tier = "user"
	TierTeam       Tier = "team"
	TierEnterprise Tier = "enterprise"
)

func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierUser, TierTeam, TierEnterprise:
		return true
	}
	return false
}

func (t Tier) String() string {
	return string(t)
}

// Billable operation identifiers. Each maps to a token cost in the
// admission config.
const (
	OpScreenshot         = "screenshot"
	OpLighthouseAudit    = "lighthouseAudit"
	OpConsoleLog         = "consoleLog"
	OpNetworkLog         = "networkLog"
	OpTriageReport       = "triageReport"
	OpAccessibilityAudit = "accessibilityAudit"
	OpPerformanceAudit   = "performanceAudit"
	OpSEOAudit           = "seoAudit"
	OpBestPracticesAudit = "bestPracticesAudit"
	OpElementInspection  = "elementInspection"
	OpJSExecution        = "jsExecution"
)

// RateWindow is the fixed time bucket counting requests for one identity.
// While the window is current, Count only increases; an expired window is
// replaced whole, never merged.
type RateWindow struct {
	Key         string    `json:"key"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
	LastRequest time.Time `json:"last_request"`
}

// Expired reports whether the window no longer covers now.
func (w *RateWindow) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(w.WindowStart) > window
}

// RateLimitResult is the outcome of a single rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// QuotaPeriod tracks one user's token consumption for one calendar month.
// Created lazily on first consumption; TokensUsed only increases via Consume.
type QuotaPeriod struct {
	UserID      string         `json:"user_id"`
	Year        int            `json:"year"`
	Month       time.Month     `json:"month"`
	TokensUsed  int            `json:"tokens_used"`
	TokensLimit int            `json:"tokens_limit"` // UnlimitedTokens means no cap
	Tier        Tier           `json:"tier"`
	Operations  map[string]int `json:"operations"`
	LastUsedAt  time.Time      `json:"last_used_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewQuotaPeriod creates an empty period record with domain invariant validation.
func NewQuotaPeriod(userID string, year int, month time.Month, tier Tier, tokensLimit int, now time.Time) (*QuotaPeriod, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user_id cannot be empty")
	}
	if tokensLimit < UnlimitedTokens {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tokens_limit cannot be below -1")
	}

	return &QuotaPeriod{
		UserID:      userID,
		Year:        year,
		Month:       month,
		TokensUsed:  0,
		TokensLimit: tokensLimit,
		Tier:        tier,
		Operations:  make(map[string]int),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsUnlimited reports whether the period has no token cap.
func (p *QuotaPeriod) IsUnlimited() bool {
	return p.TokensLimit == UnlimitedTokens
}

// Remaining returns the tokens left in the period, never negative.
// Unlimited periods report UnlimitedTokens.
func (p *QuotaPeriod) Remaining() int {
	if p.IsUnlimited() {
		return UnlimitedTokens
	}
	if rem := p.TokensLimit - p.TokensUsed; rem > 0 {
		return rem
	}
	return 0
}

// Exhausted reports whether the period has no tokens left.
func (p *QuotaPeriod) Exhausted() bool {
	return !p.IsUnlimited() && p.TokensUsed >= p.TokensLimit
}

// Clone returns a deep copy. Stored records are immutable; mutations go
// through a clone followed by a conditional write.
func (p *QuotaPeriod) Clone() *QuotaPeriod {
	clone := *p
	clone.Operations = make(map[string]int, len(p.Operations))
	for op, count := range p.Operations {
		clone.Operations[op] = count
	}
	return &clone
}

// Key returns the storage key for this period.
func (p *QuotaPeriod) Key() string {
	return PeriodKey(p.UserID, p.Year, p.Month)
}

// PeriodKey builds the per-user, per-calendar-month storage key.
func PeriodKey(userID string, year int, month time.Month) string {
	return fmt.Sprintf("%s_%d_%d", userID, year, int(month))
}

// PeriodBounds returns the first and last instants of the calendar month
// containing t, in t's location.
func PeriodBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// Balance is a read-only snapshot of a user's current-month quota.
type Balance struct {
	TokensUsed      int            `json:"tokens_used"`
	TokensLimit     int            `json:"tokens_limit"`
	TokensRemaining int            `json:"tokens_remaining"`
	IsUnlimited     bool           `json:"is_unlimited"`
	Tier            Tier           `json:"tier"`
	PeriodStart     time.Time      `json:"period_start"`
	PeriodEnd       time.Time      `json:"period_end"`
	Operations      map[string]int `json:"operations"`
}

// CanPerformResult is the advisory answer to "could this operation run now".
// It is non-binding; only Consume's outcome gates the billable work.
type CanPerformResult struct {
	Allowed         bool   `json:"allowed"`
	TokensRequired  int    `json:"tokens_required"`
	TokensRemaining int    `json:"tokens_remaining"`
	Message         string `json:"message,omitempty"`
}

// ConsumeResult is the authoritative outcome of a token consumption attempt.
type ConsumeResult struct {
	Success        bool   `json:"success"`
	TokensConsumed int    `json:"tokens_consumed"`
	NewBalance     int    `json:"new_balance"`
	Message        string `json:"message,omitempty"`
}

// UsagePeriod is one month's rollup in a usage history response.
type UsagePeriod struct {
	Period      string         `json:"period"` // "YYYY-MM"
	TokensUsed  int            `json:"tokens_used"`
	TokensLimit int            `json:"tokens_limit"`
	Operations  map[string]int `json:"operations"`
}
