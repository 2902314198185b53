package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// GetActiveBinding loads the tenant's active AI-runtime binding. At most one
// exists per tenant (enforced by a partial unique index).
func (s *Store) GetActiveBinding(ctx context.Context, tenantID uuid.UUID) (*bridge.AIProjectBinding, error) {
	var b bridge.AIProjectBinding
	err := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, project_id, runtime_config, api_key, is_active, created_at
		FROM ai_project_bindings
		WHERE tenant_id = $1 AND is_active
		LIMIT 1
	`, tenantID).Scan(&b.ID, &b.TenantID, &b.ProjectID, &b.RuntimeConfig,
		&b.APIKey, &b.IsActive, &b.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}
