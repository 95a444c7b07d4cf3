package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	admissionconfig "auditgate/internal/admission/config"
	"auditgate/internal/admission/metrics"
	"auditgate/internal/admission/models"
	"auditgate/internal/admission/quota"
	"auditgate/internal/admission/ratelimit"
	"auditgate/internal/admission/store"
	"auditgate/internal/admission/tier"
	"auditgate/internal/admission/tracer"
	"auditgate/internal/jwttoken"
	"auditgate/internal/platform/config"
	"auditgate/internal/platform/httpserver"
	"auditgate/internal/platform/logger"
	httptransport "auditgate/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	tables := admissionconfig.Default()
	if cfg.AdmissionFile != "" {
		loaded, err := admissionconfig.Load(cfg.AdmissionFile)
		if err != nil {
			log.Error("failed to load admission config", "error", err, "path", cfg.AdmissionFile)
			os.Exit(1)
		}
		tables = loaded
	}

	log.Info("initializing auditgate", "addr", cfg.Addr)

	m := metrics.New()
	tr := tracer.NewOTel()
	windows := store.NewMemory()
	periods := store.NewMemory()
	tiers := tier.NewStatic()

	apiLimiter, err := ratelimit.New(windows,
		ratelimit.PresetConfig(tables, "api"),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
		ratelimit.WithTracer(tr),
	)
	if err != nil {
		log.Error("failed to build api limiter", "error", err)
		os.Exit(1)
	}

	screenshotLimiter, err := ratelimit.New(windows,
		ratelimit.PresetConfig(tables, "screenshot"),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
		ratelimit.WithTracer(tr),
	)
	if err != nil {
		log.Error("failed to build screenshot limiter", "error", err)
		os.Exit(1)
	}

	ledger, err := quota.New(periods, tiers, tables,
		quota.WithLogger(log),
		quota.WithMetrics(m),
		quota.WithTracer(tr),
	)
	if err != nil {
		log.Error("failed to build quota ledger", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)

	handler := httptransport.NewHandler(ledger, map[string]*ratelimit.Service{
		models.OpScreenshot: screenshotLimiter,
	}, log)
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		APILimiter:     apiLimiter,
		TokenValidator: jwtValidatorAdapter{jwtService},
		AdminToken:     cfg.AdminToken,
		RequestTimeout: cfg.RequestTimeout,
	}, log)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
