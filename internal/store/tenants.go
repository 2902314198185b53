package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// GetTenant loads a tenant by ID. Soft-deleted tenants are invisible.
func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*bridge.Tenant, error) {
	var t bridge.Tenant
	err := s.DB.QueryRow(ctx, `
		SELECT id, email, role, created_at, deleted_at
		FROM tenants
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&t.ID, &t.Email, &t.Role, &t.CreatedAt, &t.DeletedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// SoftDeleteTenant marks a tenant erased. Owned rows stay until an operator
// confirms the erasure and hard-deletes, at which point the schema cascades.
func (s *Store) SoftDeleteTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE tenants SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bridge.ErrNotFound
	}
	return nil
}
