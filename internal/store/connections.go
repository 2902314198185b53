package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

const connectionCols = `id, tenant_id, page_id, account_id, access_token, token_expiry, refreshed_at, created_at`

func scanConnection(row interface{ Scan(...any) error }) (*bridge.SocialConnection, error) {
	var c bridge.SocialConnection
	err := row.Scan(&c.ID, &c.TenantID, &c.PageID, &c.AccountID, &c.AccessToken,
		&c.TokenExpiry, &c.RefreshedAt, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetConnection loads a connection by ID.
func (s *Store) GetConnection(ctx context.Context, id uuid.UUID) (*bridge.SocialConnection, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+connectionCols+`
		FROM social_connections
		WHERE id = $1
	`, id)
	return scanConnection(row)
}

// GetConnectionByAsset resolves the connection an inbound event targets:
// the recipient ID is the provider asset (page or account) the message was
// sent to.
func (s *Store) GetConnectionByAsset(ctx context.Context, tenantID uuid.UUID, platform bridge.Platform, externalID string) (*bridge.SocialConnection, error) {
	col := "page_id"
	if platform == bridge.PlatformPhoto {
		col = "account_id"
	}
	row := s.DB.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM social_connections
		WHERE tenant_id = $1 AND %s = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, connectionCols, col), tenantID, externalID)
	return scanConnection(row)
}

// FindConnectionByAsset matches a provider asset ID against either column,
// for callbacks that identify the asset but not the tenant.
func (s *Store) FindConnectionByAsset(ctx context.Context, externalID string) (*bridge.SocialConnection, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+connectionCols+`
		FROM social_connections
		WHERE page_id = $1 OR account_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, externalID)
	return scanConnection(row)
}

// ListExpiringConnections returns connections whose token expires before the
// cutoff, oldest expiry first.
func (s *Store) ListExpiringConnections(ctx context.Context, cutoff time.Time) ([]*bridge.SocialConnection, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+connectionCols+`
		FROM social_connections
		WHERE token_expiry < $1
		ORDER BY token_expiry ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bridge.SocialConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateConnectionToken stores a rotated credential and stamps refreshed_at.
func (s *Store) UpdateConnectionToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE social_connections
		SET access_token = $2, token_expiry = $3, refreshed_at = now()
		WHERE id = $1
	`, id, token, expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bridge.ErrNotFound
	}
	return nil
}
