package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// UpsertConversation finds or creates the thread keyed by
// (tenant, platform, external_thread_id), binds it to the session, and
// advances last_message_at. GREATEST keeps the timestamp monotonic when
// events arrive out of order.
func (s *Store) UpsertConversation(ctx context.Context, tenantID uuid.UUID, platform bridge.Platform, externalThreadID, participantID string, sessionID uuid.UUID, at time.Time) (*bridge.Conversation, error) {
	var c bridge.Conversation
	err := s.DB.QueryRow(ctx, `
		INSERT INTO conversations (tenant_id, platform, external_thread_id, participant_id, last_message_at, session_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, platform, external_thread_id) DO UPDATE SET
			last_message_at = GREATEST(conversations.last_message_at, EXCLUDED.last_message_at),
			session_id      = COALESCE(EXCLUDED.session_id, conversations.session_id)
		RETURNING id, tenant_id, platform, external_thread_id, participant_id, last_message_at, session_id, created_at
	`, tenantID, string(platform), externalThreadID, participantID, at, sessionID).Scan(
		&c.ID, &c.TenantID, &c.Platform, &c.ExternalThreadID, &c.ParticipantID,
		&c.LastMessageAt, &c.SessionID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation loads a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*bridge.Conversation, error) {
	var c bridge.Conversation
	err := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, platform, external_thread_id, participant_id, last_message_at, session_id, created_at
		FROM conversations
		WHERE id = $1
	`, id).Scan(&c.ID, &c.TenantID, &c.Platform, &c.ExternalThreadID, &c.ParticipantID,
		&c.LastMessageAt, &c.SessionID, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}
