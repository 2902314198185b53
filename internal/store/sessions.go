package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/bridge"
)

const sessionCols = `id, tenant_id, participant_id, platform, context, last_interaction, expires_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (*bridge.Session, error) {
	var sess bridge.Session
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.ParticipantID, &sess.Platform,
		&sess.Context, &sess.LastInteraction, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}

// GetSession loads a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*bridge.Session, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetOrCreateSession finds the most recent live session for the
// (tenant, participant, platform) key and extends its TTL, creating a fresh
// one when none matches. Every call counts as an interaction.
func (s *Store) GetOrCreateSession(ctx context.Context, tenantID uuid.UUID, participantID string, platform bridge.Platform, ttl time.Duration) (*bridge.Session, error) {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	row := s.DB.QueryRow(ctx, `
		UPDATE sessions
		SET last_interaction = $4, expires_at = $5
		WHERE id = (
			SELECT id FROM sessions
			WHERE tenant_id = $1 AND participant_id = $2 AND platform = $3 AND expires_at > now()
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING `+sessionCols,
		tenantID, participantID, string(platform), now, expires)

	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, bridge.ErrNotFound) {
		return nil, err
	}

	row = s.DB.QueryRow(ctx, `
		INSERT INTO sessions (tenant_id, participant_id, platform, context, last_interaction, expires_at)
		VALUES ($1, $2, $3, '{}'::jsonb, $4, $5)
		RETURNING `+sessionCols,
		tenantID, participantID, string(platform), now, expires)

	sess, err = scanSession(row)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("session_id", sess.ID.String()).
		Str("tenant_id", tenantID.String()).
		Str("platform", string(platform)).
		Msg("session created")
	return sess, nil
}

// updateSessionContext applies mutate to the context map under a row lock so
// concurrent read-modify-write cycles never drop siblings.
func (s *Store) updateSessionContext(ctx context.Context, id uuid.UUID, mutate func(m map[string]any)) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var m map[string]any
		if err := tx.QueryRow(ctx, `
			SELECT context FROM sessions WHERE id = $1 FOR UPDATE
		`, id).Scan(&m); err != nil {
			return notFound(err)
		}
		if m == nil {
			m = map[string]any{}
		}
		mutate(m)
		_, err := tx.Exec(ctx, `UPDATE sessions SET context = $2 WHERE id = $1`, id, m)
		return err
	})
}

// AppendSessionHistory appends one turn to conversationHistory, truncating
// to the newest 50 entries.
func (s *Store) AppendSessionHistory(ctx context.Context, id uuid.UUID, role, content string) error {
	now := time.Now().UTC()
	return s.updateSessionContext(ctx, id, func(m map[string]any) {
		bridge.AppendHistory(m, role, content, now)
	})
}

// MergeSessionContext merges scalar keys into the context root.
func (s *Store) MergeSessionContext(ctx context.Context, id uuid.UUID, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.updateSessionContext(ctx, id, func(m map[string]any) {
		bridge.MergeScalars(m, vars, now)
	})
}

// CleanupSessions deletes every expired session and reports how many went.
func (s *Store) CleanupSessions(ctx context.Context) (int64, error) {
	var cleaned int64
	err := s.DB.QueryRow(ctx, `
		WITH del AS (
			DELETE FROM sessions WHERE expires_at < now() RETURNING 1
		)
		SELECT count(*) FROM del
	`).Scan(&cleaned)
	if err != nil {
		return 0, err
	}
	if cleaned > 0 {
		log.Info().Int64("cleaned", cleaned).Msg("expired sessions removed")
	}
	return cleaned, nil
}
