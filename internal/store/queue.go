package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// MaxAttempts bounds claims per event: the claim predicate refuses rows that
// already burned this many retries.
const MaxAttempts = 3

const eventCols = `id, tenant_id, platform, sender_id, recipient_id, raw_payload, event_ts,
	status, retry_count, last_retry_at, error, completed_at, created_at`

func scanEvent(row interface{ Scan(...any) error }) (*bridge.QueuedEvent, error) {
	var ev bridge.QueuedEvent
	err := row.Scan(&ev.ID, &ev.TenantID, &ev.Platform, &ev.SenderID, &ev.RecipientID,
		&ev.RawPayload, &ev.EventTS, &ev.Status, &ev.RetryCount, &ev.LastRetryAt,
		&ev.Error, &ev.CompletedAt, &ev.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

// EnqueueEvent durably records an inbound event plus its "received" trace in
// one transaction. The webhook handler acknowledges the provider only after
// this commits.
func (s *Store) EnqueueEvent(ctx context.Context, tenantID uuid.UUID, platform bridge.Platform, senderID, recipientID string, rawPayload map[string]any, eventTS time.Time) (*bridge.QueuedEvent, error) {
	var ev *bridge.QueuedEvent
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO queued_events (tenant_id, platform, sender_id, recipient_id, raw_payload, event_ts)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+eventCols,
			tenantID, string(platform), senderID, recipientID, rawPayload, eventTS)

		var err error
		ev, err = scanEvent(row)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO processing_traces (queued_event_id, stage, status)
			VALUES ($1, $2, 'completed')
		`, ev.ID, bridge.StageReceived)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ClaimEvents atomically flips a batch of pending events to processing,
// charging one attempt each. SKIP LOCKED keeps concurrent drainers from
// claiming the same rows; completed and exhausted rows never match.
func (s *Store) ClaimEvents(ctx context.Context, batchSize int) ([]*bridge.QueuedEvent, error) {
	rows, err := s.DB.Query(ctx, `
		UPDATE queued_events
		SET status = 'processing', retry_count = retry_count + 1, last_retry_at = now()
		WHERE id IN (
			SELECT id FROM queued_events
			WHERE status = 'pending' AND retry_count < $2
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventCols, batchSize, MaxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bridge.QueuedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReleaseEvent returns a claimed event to pending after a transient failure
// with retries remaining.
func (s *Store) ReleaseEvent(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE queued_events SET status = 'pending', error = $2
		WHERE id = $1 AND status = 'processing'
	`, id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bridge.ErrNotFound
	}
	return nil
}

// FailEvent parks a claimed event terminally. Failed rows are re-claimable
// only through RequeueEvent.
func (s *Store) FailEvent(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE queued_events SET status = 'failed', error = $2
		WHERE id = $1 AND status = 'processing'
	`, id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bridge.ErrNotFound
	}
	return nil
}

// CompleteEvent marks a claimed event terminally successful.
func (s *Store) CompleteEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE queued_events SET status = 'completed', completed_at = now(), error = NULL
		WHERE id = $1 AND status = 'processing'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bridge.ErrNotFound
	}
	return nil
}

// ReapStaleClaims reverts events stuck in processing longer than the cutoff,
// covering workers that died mid-pipeline.
func (s *Store) ReapStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.DB.Exec(ctx, `
		UPDATE queued_events SET status = 'pending'
		WHERE status = 'processing' AND last_retry_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RequeueEvent is the explicit operator action that makes a failed event
// claimable again, with a fresh retry budget.
func (s *Store) RequeueEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE queued_events SET status = 'pending', retry_count = 0, error = NULL
		WHERE id = $1 AND status = 'failed'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bridge.ErrNotFound
	}
	return nil
}

// GetEvent loads a queued event by ID.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*bridge.QueuedEvent, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+eventCols+` FROM queued_events WHERE id = $1`, id)
	return scanEvent(row)
}
