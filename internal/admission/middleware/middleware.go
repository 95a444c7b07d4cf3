// Package middleware adapts the admission services to HTTP. The rate limiter
// wraps whole routes; the quota charge runs inside billable handlers once the
// operation and multiplier are known.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"auditgate/internal/admission/models"
	"auditgate/internal/admission/quota"
	"auditgate/internal/admission/ratelimit"
	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/httputil"
	"auditgate/pkg/requestcontext"
)

// consumptionFailureMessage is what callers see when the token budget could
// not be verified. The underlying storage error stays in the logs.
const consumptionFailureMessage = "Failed to process token consumption"

// RateLimit enforces a fixed-window limit per client identity. Every response
// that went through a successful check carries the X-RateLimit-* headers;
// denials additionally get Retry-After and a 429 JSON body.
//
// The limiter is advisory: if the window store is unreachable the request is
// let through without headers rather than blocking traffic on a counter.
func RateLimit(limiter *ratelimit.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			result, err := limiter.Check(ctx, r)
			if err != nil {
				logger.WarnContext(ctx, "rate limit check failed, allowing request",
					"error", err,
					"preset", limiter.Preset(),
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, models.RateLimitExceededResponse{
					Success:    false,
					Error:      "Too Many Requests",
					RetryAfter: result.RetryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ChargeTokens gates a billable handler on the authenticated user's token
// budget. It writes the denial or failure response itself and returns the
// consume result with ok=true only when the handler may run the paid work.
//
// Fail-closed: any error verifying or charging the budget refuses the
// operation with a generic message.
func ChargeTokens(
	w http.ResponseWriter,
	r *http.Request,
	ledger *quota.Service,
	operation string,
	multiplier int,
	logger *slog.Logger,
) (*models.ConsumeResult, bool) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}

	result, err := ledger.Consume(ctx, userID, operation, multiplier)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) || dErrors.HasCode(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return nil, false
		}
		logger.ErrorContext(ctx, "token consumption failed",
			"error", err,
			"operation", operation,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, models.QuotaExceededResponse{
			Success: false,
			Error:   consumptionFailureMessage,
		})
		return nil, false
	}

	if !result.Success {
		httputil.WriteJSON(w, http.StatusTooManyRequests, models.QuotaExceededResponse{
			Success:         false,
			Error:           result.Message,
			TokensRemaining: result.NewBalance,
		})
		return nil, false
	}

	return result, true
}
