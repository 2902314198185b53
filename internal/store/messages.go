package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// InsertMessage appends one exchange record to a conversation.
func (s *Store) InsertMessage(ctx context.Context, conversationID uuid.UUID, sender bridge.Sender, content string, externalID *string) (*bridge.Message, error) {
	var m bridge.Message
	err := s.DB.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender, content, external_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, sender, content, external_id, sent_at
	`, conversationID, string(sender), content, externalID).Scan(
		&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.ExternalID, &m.SentAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a conversation's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*bridge.Message, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, conversation_id, sender, content, external_id, sent_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bridge.Message
	for rows.Next() {
		var m bridge.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.ExternalID, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
