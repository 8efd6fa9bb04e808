package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "DIRECT"
	ConversationAI     ConversationType = "AI"
)

type Conversation struct {
	ID           uuid.UUID        `json:"id"`
	Type         ConversationType `json:"type"`
	Participants []Participant    `json:"participants"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type Participant struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is a sidebar entry: the conversation, its members and
// the most recent message, if any.
type ConversationSummary struct {
	Conversation
	Members     []UserRef `json:"members"`
	LastMessage *Message  `json:"last_message,omitempty"`
}

// DirectKey returns the canonical key for the unordered pair (a, b). At most
// one DIRECT conversation may exist per key.
func DirectKey(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + ":" + hi
}
