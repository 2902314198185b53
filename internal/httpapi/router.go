package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/auth"
	"github.com/chatforge/bridge-api/internal/config"
	"github.com/chatforge/bridge-api/internal/metrics"
	"github.com/chatforge/bridge-api/internal/refresher"
	"github.com/chatforge/bridge-api/internal/store"
	"github.com/chatforge/bridge-api/internal/worker"
)

// Server holds dependencies for HTTP handlers
type Server struct {
	Store     *store.Store
	Worker    *worker.Worker
	Refresher *refresher.Refresher
	Metrics   *metrics.Metrics
	Cfg       config.Config
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes a JSON error envelope
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	log.Ctx(r.Context()).Debug().Int("status", code).Str("error", msg).Msg("request rejected")
	writeJSON(w, code, map[string]string{"error": msg})
}

// parseLimit parses a limit query param with default and max
func parseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Routes creates the HTTP router with all bridge endpoints
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	// Health check (unauthenticated)
	r.Get("/healthz", s.Healthz)

	// Prometheus scrape endpoint (unauthenticated, no /api prefix)
	r.Handle("/metrics", s.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Provider-facing endpoints: the provider authenticates with
		// signatures, not bearer tokens.
		r.Get("/webhooks/{tenant}/{platform}/{nonce}", s.VerifyChallenge)
		r.Post("/webhooks/{tenant}/{platform}/{nonce}", s.ReceiveWebhook)

		r.Post("/data-deletion", s.DataDeletion)
		r.Get("/data-deletion-status", s.DataDeletionStatus)

		// Operator endpoints require authentication
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(auth.JWTCfg{
				HS256Secret: s.Cfg.ControlSecret,
				DevMode:     s.Cfg.DevMode,
			}))
			r.Use(RateLimitMiddleware(RateLimitConfig{
				WindowSeconds: 60,
				MaxRequests:   120,
				Burst:         30,
			}))

			r.Get("/drain", s.Drain)
			r.Post("/drain", s.Drain)

			r.Get("/session-cleanup", s.SessionCleanup)
			r.Post("/session-cleanup", s.SessionCleanup)

			r.Post("/events/{id}/requeue", s.RequeueEvent)
			r.Post("/connections/{id}/refresh", s.RefreshConnection)
			r.Post("/refresh-credentials", s.RefreshCredentials)
		})
	})

	log.Info().Msg("HTTP routes registered")
	return r
}

// Healthz reports liveness; a failing database ping degrades the check.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DB.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("health check database ping failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
