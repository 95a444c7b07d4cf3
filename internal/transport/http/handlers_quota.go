package httptransport

import (
	"net/http"
	"strconv"

	"auditgate/internal/admission/models"
	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/httputil"
	"auditgate/pkg/requestcontext"
)

// handleBalance returns the authenticated user's current-month token balance.
func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read balance",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, balance)
}

type historyResponse struct {
	Periods []models.UsagePeriod `json:"periods"`
}

// handleHistory returns monthly usage rollups, newest first. The optional
// months query parameter caps the walk-back; invalid or missing values use
// the service default.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	months := 0
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "months must be an integer"))
			return
		}
		months = parsed
	}

	history, err := h.ledger.UsageHistory(r.Context(), userID, months)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read usage history",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, historyResponse{Periods: history})
}
