// Package httptransport is the thin HTTP layer. Handlers delegate to the
// admission services without embedding business logic so transport concerns
// remain isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	admissionmw "auditgate/internal/admission/middleware"
	"auditgate/internal/admission/quota"
	"auditgate/internal/admission/ratelimit"
	"auditgate/internal/platform/middleware"
	"auditgate/pkg/httputil"
)

// Handler bundles the services behind the API surface.
type Handler struct {
	ledger     *quota.Service
	opLimiters map[string]*ratelimit.Service
	logger     *slog.Logger
}

// NewHandler wires the quota ledger and any per-operation rate limiters.
// Operations without an entry in opLimiters are covered only by the global
// API limiter.
func NewHandler(ledger *quota.Service, opLimiters map[string]*ratelimit.Service, logger *slog.Logger) *Handler {
	if opLimiters == nil {
		opLimiters = map[string]*ratelimit.Service{}
	}
	return &Handler{
		ledger:     ledger,
		opLimiters: opLimiters,
		logger:     logger,
	}
}

// RouterConfig carries the cross-cutting dependencies NewRouter wires in.
type RouterConfig struct {
	APILimiter     *ratelimit.Service
	TokenValidator middleware.TokenValidator
	AdminToken     string
	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(admissionmw.RateLimit(cfg.APILimiter, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.TokenValidator, logger))

			r.Get("/quota/balance", h.handleBalance)
			r.Get("/quota/history", h.handleHistory)
			r.Post("/audits/{operation}", h.handleAudit)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminToken(cfg.AdminToken, logger))

			r.Post("/admin/quota/{userID}/reset", h.handleQuotaReset)
			r.Put("/admin/quota/{userID}/tier", h.handleTierUpdate)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
