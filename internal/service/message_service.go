package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/repository"
)

type MessageService struct {
	convRepo repository.ConversationRepository
	fanout   *Fanout
	aiTurn   *AITurnService
}

func NewMessageService(convRepo repository.ConversationRepository, fanout *Fanout, aiTurn *AITurnService) *MessageService {
	return &MessageService{
		convRepo: convRepo,
		fanout:   fanout,
		aiTurn:   aiTurn,
	}
}

type SendMessageInput struct {
	Content string `json:"content"`
}

// SendResult is the stored message plus, for AI conversations, the reply.
type SendResult struct {
	Message *domain.Message `json:"message"`
	Reply   *domain.Message `json:"reply,omitempty"`
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// Send appends a human message and delivers it to the other participants.
// In an AI conversation the AI turn runs before Send returns; on backend
// failure the result still holds the stored message.
func (s *MessageService) Send(ctx context.Context, userID, conversationID uuid.UUID, input SendMessageInput) (*SendResult, error) {
	conv, err := s.access(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	if conv.Type == domain.ConversationAI {
		turn, err := s.aiTurn.run(ctx, userID, conv, input.Content)
		if turn == nil {
			return nil, err
		}
		return &SendResult{Message: turn.UserMessage, Reply: turn.AIMessage}, err
	}

	if strings.TrimSpace(input.Content) == "" {
		return nil, domain.ErrEmptyContent
	}

	msg, err := s.convRepo.AppendMessage(ctx, domain.NewMessage{
		ConversationID: conversationID,
		SenderID:       &userID,
		Content:        input.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	s.fanout.Deliver(ctx, msg)

	return &SendResult{Message: msg}, nil
}

// SendAI is Send restricted to AI conversations.
func (s *MessageService) SendAI(ctx context.Context, userID, conversationID uuid.UUID, input SendMessageInput) (*AITurnResult, error) {
	return s.aiTurn.Run(ctx, userID, conversationID, input.Content)
}

func (s *MessageService) List(ctx context.Context, userID, conversationID uuid.UUID, before *uuid.UUID, limit int) (*MessageListResponse, error) {
	if _, err := s.access(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// Fetch one extra to know whether there is more.
	messages, err := s.convRepo.ListMessages(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:]
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

func (s *MessageService) access(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
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
