package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/coopledger/internal/transport/httpapi/handler"
	"github.com/kislikjeka/coopledger/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/coopledger/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger        *logger.Logger
	HealthHandler *handler.HealthHandler
	// MetricsHandler serves /metrics, usually promhttp.HandlerFor the
	// registry the ledger metrics were registered on.
	MetricsHandler http.Handler
	// RateLimit overrides the default per-client limiter
	RateLimit func(http.Handler) http.Handler
}

// NewRouter creates the operational HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	limit := cfg.RateLimit
	if limit == nil {
		limit = middleware.RateLimit()
	}

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(limit)

	// Health check endpoints
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}
