package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// FindVerification matches a submitted verification token against active
// webhook configs. tenantID and platform narrow the match when the webhook
// URL supplied them; a config registered for platform "any" matches both
// variants.
func (s *Store) FindVerification(ctx context.Context, tenantID *uuid.UUID, platform bridge.Platform, token string) (*bridge.WebhookConfig, error) {
	var c bridge.WebhookConfig
	err := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, platform, verification_token, webhook_url, generated_url, is_active, created_at
		FROM webhook_configs
		WHERE is_active
		  AND verification_token = $1
		  AND ($2::uuid IS NULL OR tenant_id = $2)
		  AND ($3::text = '' OR platform = $3 OR platform = 'any')
		LIMIT 1
	`, token, tenantID, string(platform)).Scan(
		&c.ID, &c.TenantID, &c.Platform, &c.VerificationToken,
		&c.WebhookURL, &c.GeneratedURL, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// HasActiveConfig reports whether the tenant has an active registration
// covering the platform.
func (s *Store) HasActiveConfig(ctx context.Context, tenantID uuid.UUID, platform bridge.Platform) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM webhook_configs
			WHERE is_active AND tenant_id = $1 AND (platform = $2 OR platform = 'any')
		)
	`, tenantID, string(platform)).Scan(&exists)
	return exists, err
}
