package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/hideout/internal/domain"
)

// maxDirectAttempts bounds the insert/reread loop in FindOrCreateDirect.
const maxDirectAttempts = 3

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return r.getOne(ctx, `
		SELECT id, type, created_at, updated_at
		FROM conversations
		WHERE id = $1`, id)
}

func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`, conversationID, userID).Scan(&ok)
	return ok, err
}

func (r *ConversationRepo) ListParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.type, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		summaries []domain.ConversationSummary
		ids       []uuid.UUID
		index     = make(map[uuid.UUID]int)
	)
	for rows.Next() {
		var s domain.ConversationSummary
		if err := rows.Scan(&s.ID, &s.Type, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		index[s.ID] = len(summaries)
		ids = append(ids, s.ID)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return summaries, nil
	}

	members, err := r.pool.Query(ctx, `
		SELECT p.conversation_id, p.user_id, p.joined_at, u.name, u.email, u.avatar_url
		FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = ANY($1)
		ORDER BY p.joined_at, p.user_id`, ids)
	if err != nil {
		return nil, err
	}
	defer members.Close()
	for members.Next() {
		var (
			p   domain.Participant
			ref domain.UserRef
		)
		if err := members.Scan(&p.ConversationID, &p.UserID, &p.JoinedAt, &ref.Name, &ref.Email, &ref.AvatarURL); err != nil {
			return nil, err
		}
		ref.ID = p.UserID
		s := &summaries[index[p.ConversationID]]
		s.Participants = append(s.Participants, p)
		s.Members = append(s.Members, ref)
	}
	if err := members.Err(); err != nil {
		return nil, err
	}

	last, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (conversation_id)
			id, conversation_id, sender_id, content, is_ai_message, created_at, seq
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, created_at DESC, seq DESC`, ids)
	if err != nil {
		return nil, err
	}
	defer last.Close()
	for last.Next() {
		var m domain.Message
		if err := last.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsAIMessage, &m.CreatedAt, &m.Seq); err != nil {
			return nil, err
		}
		summaries[index[m.ConversationID]].LastMessage = &m
	}
	return summaries, last.Err()
}

// FindOrCreateDirect relies on the unique direct_key: a racing insert that
// loses hits ON CONFLICT DO NOTHING and rereads the winner's row.
func (r *ConversationRepo) FindOrCreateDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, bool, error) {
	if a == b {
		return nil, false, domain.ErrSelfConversation
	}
	key := domain.DirectKey(a, b)

	for attempt := 0; attempt < maxDirectAttempts; attempt++ {
		conv, err := r.getOne(ctx, `
			SELECT id, type, created_at, updated_at
			FROM conversations
			WHERE direct_key = $1`, key)
		if err != nil {
			return nil, false, err
		}
		if conv != nil {
			return conv, false, nil
		}

		conv, err = r.insertConversation(ctx, domain.ConversationDirect, &key, a, b)
		if errors.Is(err, errConflict) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("creating direct conversation: %w", err)
		}
		return conv, true, nil
	}
	return nil, false, fmt.Errorf("creating direct conversation: %w", errConflict)
}

func (r *ConversationRepo) CreateAI(ctx context.Context, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := r.insertConversation(ctx, domain.ConversationAI, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("creating ai conversation: %w", err)
	}
	return conv, nil
}

var errConflict = errors.New("conversation already exists")

func (r *ConversationRepo) insertConversation(ctx context.Context, typ domain.ConversationType, directKey *string, userIDs ...uuid.UUID) (*domain.Conversation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	conv := &domain.Conversation{ID: uuid.New(), Type: typ}
	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (id, type, direct_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (direct_key) DO NOTHING
		RETURNING created_at, updated_at`,
		conv.ID, conv.Type, directKey,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errConflict
	}
	if err != nil {
		return nil, err
	}

	for _, uid := range userIDs {
		p := domain.Participant{ConversationID: conv.ID, UserID: uid}
		if err := tx.QueryRow(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2)
			RETURNING joined_at`, p.ConversationID, p.UserID,
		).Scan(&p.JoinedAt); err != nil {
			return nil, err
		}
		conv.Participants = append(conv.Participants, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepo) getOne(ctx context.Context, query string, arg any) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.pool.QueryRow(ctx, query, arg).Scan(&conv.ID, &conv.Type, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, user_id, joined_at
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id`, conv.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, err
		}
		conv.Participants = append(conv.Participants, p)
	}
	return &conv, rows.Err()
}
