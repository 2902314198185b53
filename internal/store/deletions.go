package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// InsertDeletionRequest records a provider-initiated erasure callback.
// tenantID is nil when the external user could not be mapped to a tenant.
func (s *Store) InsertDeletionRequest(ctx context.Context, tenantID *uuid.UUID, externalUserID, confirmationCode string) (*bridge.DeletionRequest, error) {
	var d bridge.DeletionRequest
	err := s.DB.QueryRow(ctx, `
		INSERT INTO deletion_requests (tenant_id, external_user_id, confirmation_code)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, external_user_id, confirmation_code, status, created_at
	`, tenantID, externalUserID, confirmationCode).Scan(
		&d.ID, &d.TenantID, &d.ExternalUserID, &d.ConfirmationCode, &d.Status, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeletionRequestByCode backs the status URL handed to the provider.
func (s *Store) GetDeletionRequestByCode(ctx context.Context, code string) (*bridge.DeletionRequest, error) {
	var d bridge.DeletionRequest
	err := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, external_user_id, confirmation_code, status, created_at
		FROM deletion_requests
		WHERE confirmation_code = $1
	`, code).Scan(&d.ID, &d.TenantID, &d.ExternalUserID, &d.ConfirmationCode, &d.Status, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}
