package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/ai"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/repository"
)

// FallbackReply is stored when the backend answers with nothing but
// whitespace.
const FallbackReply = "Sorry, I couldn't come up with a reply. Please try again."

const (
	defaultContextWindow = 20
	defaultAITimeout     = 60 * time.Second
)

type AITurnConfig struct {
	SystemPrompt  string
	ContextWindow int
	Timeout       time.Duration
}

// AITurnService appends a human message to an AI conversation and threads
// the backend's reply into the same timeline.
type AITurnService struct {
	convRepo repository.ConversationRepository
	fanout   *Fanout
	provider ai.Provider
	cfg      AITurnConfig
}

func NewAITurnService(convRepo repository.ConversationRepository, fanout *Fanout, provider ai.Provider, cfg AITurnConfig) *AITurnService {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = defaultContextWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAITimeout
	}
	return &AITurnService{
		convRepo: convRepo,
		fanout:   fanout,
		provider: provider,
		cfg:      cfg,
	}
}

type AITurnResult struct {
	UserMessage *domain.Message `json:"user_message"`
	AIMessage   *domain.Message `json:"ai_message,omitempty"`
}

// Run validates and stores the human turn, then asks the backend for a
// reply. On backend failure the result still carries the stored human
// message and the error wraps domain.ErrAIBackendFailure.
func (s *AITurnService) Run(ctx context.Context, userID, conversationID uuid.UUID, content string) (*AITurnResult, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	if conv.Type != domain.ConversationAI {
		return nil, domain.ErrNotAIConversation
	}
	return s.run(ctx, userID, conv, content)
}

func (s *AITurnService) run(ctx context.Context, userID uuid.UUID, conv *domain.Conversation, content string) (*AITurnResult, error) {
	if !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	human, err := s.convRepo.AppendMessage(ctx, domain.NewMessage{
		ConversationID: conv.ID,
		SenderID:       &userID,
		Content:        content,
	})
	if err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}
	s.fanout.Deliver(ctx, human)

	result := &AITurnResult{UserMessage: human}

	// The reply belongs to the conversation, not to this request.
	ctx = context.WithoutCancel(ctx)

	reply, err := s.complete(ctx, conv.ID)
	if err != nil {
		log.Printf("ERROR ai turn %s: %v", conv.ID, err)
		return result, fmt.Errorf("%w: %w", domain.ErrAIBackendFailure, err)
	}

	aiMsg, err := s.convRepo.AppendMessage(ctx, domain.NewMessage{
		ConversationID: conv.ID,
		Content:        reply,
		IsAI:           true,
	})
	if err != nil {
		return result, fmt.Errorf("storing ai reply: %w", err)
	}
	s.fanout.Deliver(ctx, aiMsg)

	result.AIMessage = aiMsg
	return result, nil
}

func (s *AITurnService) complete(ctx context.Context, conversationID uuid.UUID) (string, error) {
	history, err := s.convRepo.ListMessages(ctx, conversationID, nil, s.cfg.ContextWindow)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	prompt := make([]ai.Message, 0, len(history)+1)
	if s.cfg.SystemPrompt != "" {
		prompt = append(prompt, ai.Message{Role: ai.RoleSystem, Content: s.cfg.SystemPrompt})
	}
	for i := range history {
		prompt = append(prompt, ai.Message{Role: history[i].Role(), Content: history[i].Content})
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	reply, err := s.provider.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return FallbackReply, nil
	}
	return reply, nil
}
