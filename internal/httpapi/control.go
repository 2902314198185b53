package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/auth"
	"github.com/chatforge/bridge-api/internal/bridge"
	"github.com/chatforge/bridge-api/internal/worker"
)

// maxDrainBatch caps one HTTP-triggered drain pass.
const maxDrainBatch = 100

// Drain claims a batch of pending events and runs them through the pipeline.
//
// GET|POST /api/drain?batchSize=N
func (s *Server) Drain(w http.ResponseWriter, r *http.Request) {
	batch := parseLimit(r.URL.Query().Get("batchSize"), worker.DefaultBatchSize, maxDrainBatch)

	summary, err := s.Worker.Drain(r.Context(), batch)
	if err != nil {
		log.Error().Err(err).Msg("drain pass failed")
		writeError(w, r, http.StatusInternalServerError, "drain failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"processed": summary.Claimed,
		"completed": summary.Completed,
		"released":  summary.Released,
		"failed":    summary.Failed,
		"reaped":    summary.Reaped,
		"results":   summary.Results,
	})
}

// SessionCleanup deletes expired sessions.
//
// GET|POST /api/session-cleanup
func (s *Server) SessionCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.CleanupSessions(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("session cleanup failed")
		writeError(w, r, http.StatusInternalServerError, "session cleanup failed")
		return
	}

	s.Metrics.SessionsCleaned.Add(float64(n))
	log.Info().Int64("cleaned", n).Msg("session cleanup finished")
	writeJSON(w, http.StatusOK, map[string]int64{"cleaned": n})
}

// RequeueEvent puts a failed event back in the queue with a fresh retry
// budget.
//
// POST /api/events/{id}/requeue
func (s *Server) RequeueEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid event id")
		return
	}

	if err := s.Store.RequeueEvent(r.Context(), id); err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "no failed event with that id")
			return
		}
		log.Error().Err(err).Str("event_id", id.String()).Msg("requeue failed")
		writeError(w, r, http.StatusInternalServerError, "requeue failed")
		return
	}

	log.Info().
		Str("event_id", id.String()).
		Str("operator", auth.Subject(r.Context())).
		Msg("event requeued")
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

// RefreshConnection refreshes a single connection's credential regardless of
// how close it is to expiry.
//
// POST /api/connections/{id}/refresh
func (s *Server) RefreshConnection(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid connection id")
		return
	}

	res, err := s.Refresher.RefreshOne(r.Context(), id)
	if err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "connection not found")
			return
		}
		log.Error().Err(err).Str("connection_id", id.String()).Msg("refresh failed")
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// RefreshCredentials runs a full refresh pass over expiring connections.
//
// POST /api/refresh-credentials
func (s *Server) RefreshCredentials(w http.ResponseWriter, r *http.Request) {
	results, err := s.Refresher.RunOnce(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("credential refresh pass failed")
		writeError(w, r, http.StatusInternalServerError, "refresh pass failed")
		return
	}

	log.Info().
		Int("connections", len(results)).
		Str("operator", auth.Subject(r.Context())).
		Msg("credential refresh pass triggered")
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
