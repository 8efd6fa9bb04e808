package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/repository"
	"golang.org/x/sync/singleflight"
)

const userSearchLimit = 12

type ConversationService struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository

	// direct collapses concurrent FindOrCreateDirect calls for one pair.
	direct singleflight.Group
}

func NewConversationService(convRepo repository.ConversationRepository, userRepo repository.UserRepository) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		userRepo: userRepo,
	}
}

type CreateDirectInput struct {
	PartnerID uuid.UUID `json:"partner_id"`
}

type directResult struct {
	conv    *domain.Conversation
	created bool
}

// CreateDirect returns the DIRECT conversation between userID and partnerID,
// creating it on first use. created is true only for the call that inserted it.
func (s *ConversationService) CreateDirect(ctx context.Context, userID, partnerID uuid.UUID) (*domain.Conversation, bool, error) {
	if userID == partnerID {
		return nil, false, domain.ErrSelfConversation
	}

	partner, err := s.userRepo.GetByID(ctx, partnerID)
	if err != nil {
		return nil, false, fmt.Errorf("looking up partner: %w", err)
	}
	if partner == nil {
		return nil, false, domain.ErrUserNotFound
	}

	v, err, shared := s.direct.Do(domain.DirectKey(userID, partnerID), func() (any, error) {
		conv, created, err := s.convRepo.FindOrCreateDirect(context.WithoutCancel(ctx), userID, partnerID)
		if err != nil {
			return nil, err
		}
		return directResult{conv: conv, created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(directResult)
	return res.conv, res.created && !shared, nil
}

func (s *ConversationService) CreateAI(ctx context.Context, userID uuid.UUID) (*domain.Conversation, error) {
	return s.convRepo.CreateAI(ctx, userID)
}

// List returns the caller's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	convs, err := s.convRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if convs == nil {
		convs = []domain.ConversationSummary{}
	}
	return convs, nil
}

// Get returns the conversation if userID takes part in it.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}

func (s *ConversationService) SearchUsers(ctx context.Context, userID uuid.UUID, query string) ([]domain.UserRef, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.UserRef{}, nil
	}
	users, err := s.userRepo.Search(ctx, query, userID, userSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	if users == nil {
		users = []domain.UserRef{}
	}
	return users, nil
}
