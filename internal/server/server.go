// Package server provides the facilitator HTTP server setup and wiring.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/confluxpay/paygate/internal/chainpool"
	"github.com/confluxpay/paygate/internal/config"
	facilitatorDomain "github.com/confluxpay/paygate/internal/facilitator/domain"
	facilitatorTransport "github.com/confluxpay/paygate/internal/facilitator/transport"
	"github.com/confluxpay/paygate/internal/invoices"
	"github.com/confluxpay/paygate/internal/middleware/logging"
	"github.com/confluxpay/paygate/internal/middleware/ratelimit"
	"github.com/confluxpay/paygate/internal/middleware/realip"
	"github.com/confluxpay/paygate/internal/middleware/security"
	"github.com/confluxpay/paygate/internal/observability/metrics"
	"github.com/confluxpay/paygate/internal/schemes"
)

// Server is the facilitator HTTP server
type Server struct {
	cfg    *config.Config
	pool   *chainpool.Pool
	store  invoices.Store
	logger *slog.Logger
	router *chi.Mux

	facilitatorSvc facilitatorTransport.Service
}

// New creates a new server around an RPC pool and an invoice store.
func New(cfg *config.Config, pool *chainpool.Pool, store invoices.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		pool:   pool,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	conn := facilitatorDomain.NewPoolConnector(pool)
	s.facilitatorSvc = facilitatorDomain.NewService(conn, schemes.NewRegistry(), pool.Registry(), store, logger)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for a separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// Order matters! Security middleware runs first to block malicious requests early.

	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Security filter (blocks scanner probes, bypasses health checks)
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))

	// 3. Body size limit. Payment endpoints apply a tighter cap of their own;
	// this is the outer bound for everything the router serves.
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	// 4. Rate limiting (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	// 5. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 6. CORS
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-API-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	// Liveness probes. Chain health lives at /x402/health.
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleHealth)

	facilitatorHandler := facilitatorTransport.NewHandler(s.facilitatorSvc, s.cfg.Auth.APIKey, s.logger)
	facilitatorHandler.RegisterRoutes(s.router)

	// Metrics on the main listener unless a dedicated port is configured
	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Port == 0 {
		s.router.Handle("/metrics", metrics.Handler())
	}
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
