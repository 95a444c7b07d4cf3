package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	admissionmw "auditgate/internal/admission/middleware"
	"auditgate/internal/admission/identity"
	"auditgate/internal/admission/models"
	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/httputil"
)

type auditRequest struct {
	Multiplier int `json:"multiplier"`
}

type auditResponse struct {
	Success        bool   `json:"success"`
	Operation      string `json:"operation"`
	TokensConsumed int    `json:"tokensConsumed"`
	NewBalance     int    `json:"newBalance"`
}

// handleAudit charges tokens for a billable audit operation. The operation
// name comes from the path, the unit count from an optional JSON body
// defaulting to one. Operations with a dedicated rate preset get a second,
// tighter window on top of the global API limiter.
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	operation := chi.URLParam(r, "operation")

	req := auditRequest{Multiplier: 1}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if !h.checkOperationLimit(w, r, operation) {
		return
	}

	result, ok := admissionmw.ChargeTokens(w, r, h.ledger, operation, req.Multiplier, h.logger)
	if !ok {
		return
	}

	httputil.WriteJSON(w, http.StatusOK, auditResponse{
		Success:        true,
		Operation:      operation,
		TokensConsumed: result.TokensConsumed,
		NewBalance:     result.NewBalance,
	})
}

// checkOperationLimit applies the operation's own rate window when one is
// configured. Advisory like the global limiter: a failing check lets the
// request through.
func (h *Handler) checkOperationLimit(w http.ResponseWriter, r *http.Request, operation string) bool {
	limiter, ok := h.opLimiters[operation]
	if !ok {
		return true
	}

	result, err := limiter.CheckKey(r.Context(), identity.Identify(r))
	if err != nil {
		h.logger.WarnContext(r.Context(), "operation rate limit check failed, allowing request",
			"error", err,
			"operation", operation,
		)
		return true
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
		return false
	}
	return true
}
