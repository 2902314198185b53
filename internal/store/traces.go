package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// InsertTrace appends one audit row for a pipeline stage. errMsg may be nil;
// metadata may be nil.
func (s *Store) InsertTrace(ctx context.Context, eventID uuid.UUID, stage, status string, errMsg *string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO processing_traces (queued_event_id, stage, status, error, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, eventID, stage, status, errMsg, metadata)
	return err
}

// ListTraces returns an event's traces in write order.
func (s *Store) ListTraces(ctx context.Context, eventID uuid.UUID) ([]*bridge.ProcessingTrace, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, queued_event_id, stage, status, error, metadata, created_at
		FROM processing_traces
		WHERE queued_event_id = $1
		ORDER BY created_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bridge.ProcessingTrace
	for rows.Next() {
		var t bridge.ProcessingTrace
		if err := rows.Scan(&t.ID, &t.QueuedEventID, &t.Stage, &t.Status, &t.Error, &t.Metadata, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
