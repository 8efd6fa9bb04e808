package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
)

// AppendMessage touches the conversation first: the row lock serializes
// appends per conversation so created_at and seq agree.
func (r *ConversationRepo) AppendMessage(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, domain.ErrEmptyContent
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = clock_timestamp() WHERE id = $1`, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrConversationNotFound
	}

	if in.SenderID != nil {
		var ok bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM conversation_participants
				WHERE conversation_id = $1 AND user_id = $2
			)`, in.ConversationID, *in.SenderID).Scan(&ok); err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNotParticipant
		}
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		IsAIMessage:    in.IsAI,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, is_ai_message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, seq`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.IsAIMessage,
	).Scan(&msg.CreatedAt, &msg.Seq); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = `
			SELECT id, conversation_id, sender_id, content, is_ai_message, created_at, seq
			FROM messages
			WHERE conversation_id = $1
				AND (created_at, seq) < (SELECT created_at, seq FROM messages WHERE id = $2 AND conversation_id = $1)
			ORDER BY created_at DESC, seq DESC
			LIMIT $3`
		args = []any{conversationID, *before, limit}
	} else {
		query = `
			SELECT id, conversation_id, sender_id, content, is_ai_message, created_at, seq
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2`
		args = []any{conversationID, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
			&msg.IsAIMessage, &msg.CreatedAt, &msg.Seq,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// Reverse to chronological order (query returns DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}
