package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"auditgate/internal/admission/models"
	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/httputil"
	"auditgate/pkg/requestcontext"
)

// handleQuotaReset zeroes the user's current-month consumption.
func (h *Handler) handleQuotaReset(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.ledger.ResetUsage(r.Context(), userID); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to reset quota",
			"error", err,
			"user_id", userID,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type tierUpdateRequest struct {
	Tier string `json:"tier"`
}

// handleTierUpdate applies a subscription change to the current month,
// keeping consumption to date and returning the adjusted balance.
func (h *Handler) handleTierUpdate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req tierUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.ledger.UpdateLimitsForTier(r.Context(), userID, models.Tier(req.Tier)); err != nil {
		httputil.WriteError(w, err)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, balance)
}
