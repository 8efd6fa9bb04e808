package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is immutable once stored. SenderID is nil for AI-authored messages.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       *uuid.UUID `json:"sender_id"`
	Content        string     `json:"content"`
	IsAIMessage    bool       `json:"is_ai_message"`
	CreatedAt      time.Time  `json:"created_at"`
	// Seq breaks CreatedAt ties in insertion order.
	Seq int64 `json:"-"`
}

// NewMessage is the input to a store append.
type NewMessage struct {
	ConversationID uuid.UUID
	SenderID       *uuid.UUID
	Content        string
	IsAI           bool
}

// Role maps the message onto the neutral chat role used by completion
// backends.
func (m *Message) Role() string {
	if m.IsAIMessage || m.SenderID == nil {
		return "assistant"
	}
	return "user"
}
