package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// InsertDeadLetter parks a terminally-failed event for manual handling.
func (s *Store) InsertDeadLetter(ctx context.Context, tenantID uuid.UUID, payload map[string]any, errMsg string, metadata map[string]any) (*bridge.DeadLetter, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	var d bridge.DeadLetter
	err := s.DB.QueryRow(ctx, `
		INSERT INTO dead_letters (tenant_id, original_payload, error, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, original_payload, error, metadata, failed_at, status, retry_count
	`, tenantID, payload, errMsg, metadata).Scan(
		&d.ID, &d.TenantID, &d.OriginalPayload, &d.Error, &d.Metadata,
		&d.FailedAt, &d.Status, &d.RetryCount)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeadLetters returns a tenant's dead letters, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, tenantID uuid.UUID) ([]*bridge.DeadLetter, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, tenant_id, original_payload, error, metadata, failed_at, status, retry_count
		FROM dead_letters
		WHERE tenant_id = $1
		ORDER BY failed_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bridge.DeadLetter
	for rows.Next() {
		var d bridge.DeadLetter
		if err := rows.Scan(&d.ID, &d.TenantID, &d.OriginalPayload, &d.Error, &d.Metadata,
			&d.FailedAt, &d.Status, &d.RetryCount); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
