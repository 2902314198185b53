package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/bridge"
	"github.com/chatforge/bridge-api/internal/deletion"
)

type deletionAck struct {
	URL              string `json:"url"`
	ConfirmationCode string `json:"confirmation_code"`
}

// DataDeletion handles the provider's data-deletion callback.
//
// POST /api/data-deletion (form field signed_request)
//
// The signed request must verify; unsigned or tampered callbacks are
// rejected. When the external user maps to a connected asset, that tenant is
// soft-deleted so erasure can be confirmed before rows cascade away. The
// response hands the provider a status URL it can poll.
func (s *Server) DataDeletion(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form body")
		return
	}
	raw := r.PostFormValue("signed_request")
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "signed_request required")
		return
	}

	payload, err := deletion.ParseSignedRequest(raw, s.Cfg.AppSecret)
	if err != nil {
		log.Warn().Err(err).Msg("data-deletion callback rejected")
		writeError(w, r, http.StatusBadRequest, "invalid signed_request")
		return
	}

	code, err := deletion.ConfirmationCode()
	if err != nil {
		log.Error().Err(err).Msg("confirmation code generation failed")
		writeError(w, r, http.StatusInternalServerError, "deletion request failed")
		return
	}

	ctx := r.Context()
	var tenantID *uuid.UUID
	conn, err := s.Store.FindConnectionByAsset(ctx, payload.UserID)
	switch {
	case err == nil:
		tenantID = &conn.TenantID
		if err := s.Store.SoftDeleteTenant(ctx, conn.TenantID); err != nil && !errors.Is(err, bridge.ErrNotFound) {
			log.Error().Err(err).Str("tenant_id", conn.TenantID.String()).Msg("tenant soft delete failed")
			writeError(w, r, http.StatusInternalServerError, "deletion request failed")
			return
		}
	case errors.Is(err, bridge.ErrNotFound):
		// Unknown user: record the request anyway so the status URL answers.
	default:
		log.Error().Err(err).Msg("connection lookup failed during data deletion")
		writeError(w, r, http.StatusInternalServerError, "deletion request failed")
		return
	}

	req, err := s.Store.InsertDeletionRequest(ctx, tenantID, payload.UserID, code)
	if err != nil {
		log.Error().Err(err).Msg("deletion request insert failed")
		writeError(w, r, http.StatusInternalServerError, "deletion request failed")
		return
	}

	log.Info().
		Str("confirmation_code", req.ConfirmationCode).
		Bool("tenant_matched", tenantID != nil).
		Msg("data-deletion request recorded")

	writeJSON(w, http.StatusOK, deletionAck{
		URL:              s.Cfg.PublicURL + "/api/data-deletion-status?code=" + req.ConfirmationCode,
		ConfirmationCode: req.ConfirmationCode,
	})
}

// DataDeletionStatus answers the status URL issued by DataDeletion.
//
// GET /api/data-deletion-status?code=DEL...
func (s *Server) DataDeletionStatus(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "code required")
		return
	}

	req, err := s.Store.GetDeletionRequestByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown confirmation code")
			return
		}
		log.Error().Err(err).Msg("deletion status lookup failed")
		writeError(w, r, http.StatusInternalServerError, "status lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"code":   req.ConfirmationCode,
		"status": req.Status,
	})
}
