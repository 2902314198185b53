package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/bridge"
	"github.com/chatforge/bridge-api/internal/webhook"
)

// maxWebhookBody bounds inbound webhook bodies. Provider envelopes are a few
// KB; anything near this limit is garbage.
const maxWebhookBody = 1 << 20

type webhookAck struct {
	Status    string `json:"status"`
	Queued    int    `json:"queued"`
	Processed int    `json:"processed"`
}

// webhookParams extracts the tenant and platform path segments. Generated
// webhook URLs always carry a concrete platform even when the config is
// registered as "any".
func webhookParams(r *http.Request) (uuid.UUID, bridge.Platform, bool) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenant"))
	if err != nil {
		return uuid.Nil, "", false
	}
	platform := bridge.Platform(chi.URLParam(r, "platform"))
	if !platform.Concrete() {
		return uuid.Nil, "", false
	}
	return tenantID, platform, true
}

// VerifyChallenge answers the provider's subscription handshake.
//
// GET /api/webhooks/{tenant}/{platform}/{nonce}
//
//	?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
//
// The response body carries the challenge verbatim and nothing else.
func (s *Server) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	tenantID, platform, ok := webhookParams(r)
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown webhook")
		return
	}

	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || challenge == "" {
		writeError(w, r, http.StatusBadRequest, "invalid verification request")
		return
	}

	if _, err := s.Store.FindVerification(r.Context(), &tenantID, platform, token); err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			log.Warn().
				Str("tenant_id", tenantID.String()).
				Str("platform", string(platform)).
				Msg("webhook verification token mismatch")
			writeError(w, r, http.StatusUnauthorized, "verification failed")
			return
		}
		log.Error().Err(err).Msg("webhook verification lookup failed")
		writeError(w, r, http.StatusInternalServerError, "verification unavailable")
		return
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("platform", string(platform)).
		Msg("webhook verified")

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// ReceiveWebhook ingests provider events.
//
// POST /api/webhooks/{tenant}/{platform}/{nonce}
//
// The raw body is read before anything else because the signature covers the
// exact bytes on the wire. Signature and payload errors reject with 4xx and
// persist nothing; once events are enqueued the provider always gets a 200,
// even when something downstream breaks, so it does not retry delivered
// events.
func (s *Server) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID, platform, ok := webhookParams(r)
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown webhook")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.Metrics.EventsReceived.WithLabelValues(string(platform), "rejected").Inc()
		writeError(w, r, http.StatusBadRequest, "unreadable body")
		return
	}

	if s.Cfg.SkipSignatureCheck {
		log.Warn().Msg("signature check skipped by configuration")
	} else if err := webhook.VerifySignature(r.Header, body, s.Cfg.AppSecret); err != nil {
		s.Metrics.EventsReceived.WithLabelValues(string(platform), "rejected").Inc()
		switch {
		case errors.Is(err, webhook.ErrMissingSignature):
			writeError(w, r, http.StatusUnauthorized, "missing signature")
		case errors.Is(err, webhook.ErrMalformedHeader):
			writeError(w, r, http.StatusBadRequest, "malformed signature header")
		default:
			writeError(w, r, http.StatusUnauthorized, "invalid signature")
		}
		return
	}

	ctx := r.Context()
	if _, err := s.Store.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			s.Metrics.EventsReceived.WithLabelValues(string(platform), "rejected").Inc()
			writeError(w, r, http.StatusNotFound, "unknown tenant")
			return
		}
		// Store trouble after a verified signature: never bounce the
		// provider with a 5xx, it would retry into the same outage.
		log.Error().Err(err).Msg("tenant lookup failed during webhook ingestion")
		writeJSON(w, http.StatusOK, map[string]string{"status": "error"})
		return
	}

	events, err := webhook.ParseEvents(platform, body)
	if err != nil {
		s.Metrics.EventsReceived.WithLabelValues(string(platform), "malformed").Inc()
		writeError(w, r, http.StatusBadRequest, "malformed payload")
		return
	}

	queued := 0
	for _, ev := range events {
		if ev.Echo {
			s.Metrics.EventsReceived.WithLabelValues(string(platform), "echo").Inc()
			continue
		}
		if _, err := s.Store.EnqueueEvent(ctx, tenantID, platform, ev.SenderID, ev.RecipientID, ev.Payload, ev.EventTS); err != nil {
			log.Error().Err(err).
				Str("tenant_id", tenantID.String()).
				Str("message_id", ev.MessageID).
				Str("correlation_id", GetCorrelationID(ctx)).
				Msg("enqueue failed")
			writeJSON(w, http.StatusOK, webhookAck{Status: "error", Queued: queued, Processed: len(events)})
			return
		}
		s.Metrics.EventsReceived.WithLabelValues(string(platform), "queued").Inc()
		queued++
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("platform", string(platform)).
		Int("queued", queued).
		Int("events", len(events)).
		Str("correlation_id", GetCorrelationID(ctx)).
		Msg("webhook ingested")

	writeJSON(w, http.StatusOK, webhookAck{Status: "received", Queued: queued, Processed: len(events)})
}
