package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return getConversation(r.db.WithContext(ctx), "id = ?", id)
}

func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return isParticipant(r.db.WithContext(ctx), conversationID, userID)
}

func (r *ConversationRepo) ListParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&participantRow{}).
		Where("conversation_id = ?", conversationID).
		Order("joined_at, user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

type memberRow struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	JoinedAt       time.Time
	Name           string
	Email          string
	AvatarURL      *string
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	db := r.db.WithContext(ctx)

	var convs []conversationRow
	err := db.Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, nil
	}

	summaries := make([]domain.ConversationSummary, len(convs))
	index := make(map[uuid.UUID]int, len(convs))
	ids := make([]uuid.UUID, len(convs))
	for i, c := range convs {
		summaries[i].Conversation = c.toDomain()
		index[c.ID] = i
		ids[i] = c.ID
	}

	var members []memberRow
	err = db.Table("conversation_participants p").
		Select("p.conversation_id, p.user_id, p.joined_at, u.name, u.email, u.avatar_url").
		Joins("JOIN users u ON u.id = p.user_id").
		Where("p.conversation_id IN ?", ids).
		Order("p.joined_at, p.user_id").
		Scan(&members).Error
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		s := &summaries[index[m.ConversationID]]
		s.Participants = append(s.Participants, domain.Participant{
			ConversationID: m.ConversationID, UserID: m.UserID, JoinedAt: m.JoinedAt,
		})
		s.Members = append(s.Members, domain.UserRef{ID: m.UserID, Name: m.Name, Email: m.Email, AvatarURL: m.AvatarURL})
	}

	var last []messageRow
	err = db.Where("seq IN (?)",
		db.Model(&messageRow{}).Select("MAX(seq)").Where("conversation_id IN ?", ids).Group("conversation_id"),
	).Find(&last).Error
	if err != nil {
		return nil, err
	}
	for _, m := range last {
		msg := m.toDomain()
		summaries[index[m.ConversationID]].LastMessage = &msg
	}
	return summaries, nil
}

// FindOrCreateDirect runs inside one transaction; with a single connection
// that is enough to keep the pair unique. The ON CONFLICT clause covers a
// database shared with another process.
func (r *ConversationRepo) FindOrCreateDirect(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, bool, error) {
	if a == b {
		return nil, false, domain.ErrSelfConversation
	}
	key := domain.DirectKey(a, b)

	var (
		conv    *domain.Conversation
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := getConversation(tx, "direct_key = ?", key)
		if err != nil {
			return err
		}
		if existing != nil {
			conv = existing
			return nil
		}

		row := conversationRow{ID: uuid.New(), Type: string(domain.ConversationDirect), DirectKey: &key}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			conv, err = getConversation(tx, "direct_key = ?", key)
			return err
		}

		conv, err = insertParticipants(tx, row, a, b)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("creating direct conversation: %w", err)
	}
	return conv, created, nil
}

func (r *ConversationRepo) CreateAI(ctx context.Context, userID uuid.UUID) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := conversationRow{ID: uuid.New(), Type: string(domain.ConversationAI)}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		var err error
		conv, err = insertParticipants(tx, row, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating ai conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage bumps updated_at, checks membership and inserts in one
// transaction. Seq gives the ordering; created_at is clamped to follow it.
func (r *ConversationRepo) AppendMessage(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, domain.ErrEmptyContent
	}

	var msg domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := tx.NowFunc()

		// Keep created_at non-decreasing in seq order even if the clock steps back.
		var last messageRow
		err := tx.Where("conversation_id = ?", in.ConversationID).Order("seq DESC").Limit(1).Find(&last).Error
		if err != nil {
			return err
		}
		if last.Seq != 0 && now.Before(last.CreatedAt) {
			now = last.CreatedAt
		}

		res := tx.Model(&conversationRow{}).Where("id = ?", in.ConversationID).Update("updated_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConversationNotFound
		}

		if in.SenderID != nil {
			ok, err := isParticipant(tx, in.ConversationID, *in.SenderID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrNotParticipant
			}
		}

		row := messageRow{
			ID:             uuid.New(),
			ConversationID: in.ConversationID,
			SenderID:       in.SenderID,
			Content:        in.Content,
			IsAIMessage:    in.IsAI,
			CreatedAt:      now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		msg = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	db := r.db.WithContext(ctx)
	q := db.Where("conversation_id = ?", conversationID)
	if before != nil {
		cursor := db.Model(&messageRow{}).Select("seq").Where("id = ? AND conversation_id = ?", *before, conversationID)
		q = q.Where("seq < (?)", cursor)
	}

	var rows []messageRow
	if err := q.Order("seq DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(rows))
	for i, row := range rows {
		messages[len(rows)-1-i] = row.toDomain()
	}
	return messages, nil
}

func getConversation(db *gorm.DB, cond string, arg any) (*domain.Conversation, error) {
	var row conversationRow
	err := db.Where(cond, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var parts []participantRow
	if err := db.Where("conversation_id = ?", row.ID).Order("joined_at, user_id").Find(&parts).Error; err != nil {
		return nil, err
	}
	conv := row.toDomain()
	for _, p := range parts {
		conv.Participants = append(conv.Participants, p.toDomain())
	}
	return &conv, nil
}

func isParticipant(db *gorm.DB, conversationID, userID uuid.UUID) (bool, error) {
	var n int64
	err := db.Model(&participantRow{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

func insertParticipants(tx *gorm.DB, row conversationRow, userIDs ...uuid.UUID) (*domain.Conversation, error) {
	conv := row.toDomain()
	for _, uid := range userIDs {
		p := participantRow{ConversationID: row.ID, UserID: uid, JoinedAt: row.CreatedAt}
		if err := tx.Create(&p).Error; err != nil {
			return nil, err
		}
		conv.Participants = append(conv.Participants, p.toDomain())
	}
	return &conv, nil
}

func (c conversationRow) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:        c.ID,
		Type:      domain.ConversationType(c.Type),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (p participantRow) toDomain() domain.Participant {
	return domain.Participant{ConversationID: p.ConversationID, UserID: p.UserID, JoinedAt: p.JoinedAt}
}

func (m messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		IsAIMessage:    m.IsAIMessage,
		CreatedAt:      m.CreatedAt,
		Seq:            m.Seq,
	}
}
