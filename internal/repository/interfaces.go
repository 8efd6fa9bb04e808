package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Search(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]domain.UserRef, error)
}

// ConversationRepository is the conversation store. Lookups that find nothing
// return nil, nil; contract violations return the domain sentinel errors.
type ConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	ListParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error)

	// FindOrCreateDirect returns the DIRECT conversation for the unordered
	// pair, creating it if needed. created reports whether this call inserted it.
	FindOrCreateDirect(ctx context.Context, a, b uuid.UUID) (conv *domain.Conversation, created bool, err error)
	CreateAI(ctx context.Context, userID uuid.UUID) (*domain.Conversation, error)

	// AppendMessage inserts the message and bumps the conversation's
	// updated_at in one transaction.
	AppendMessage(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	// ListMessages returns up to limit messages older than before (newest
	// when before is nil) in ascending (created_at, seq) order.
	ListMessages(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error)
}
