package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
)

// Event types - Client → Server
const (
	EventTypePing = "ping"
)

// Event types - Server → Client
const (
	EventTypePresence   = "presence:update"
	EventTypeSnapshot   = "presence:snapshot"
	EventTypeMessageNew = "message:new"
	EventTypePong       = "pong"
	EventTypeError      = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Server → Client payloads ---

type PresencePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Online bool      `json:"online"`
}

// SnapshotPayload lists who else is online when a connection opens.
type SnapshotPayload struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

type MessagePayload struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	Message        domain.Message `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().UnixMilli(),
	}, nil
}

func encodeEvent(eventType string, conversationID *uuid.UUID, payload any) ([]byte, error) {
	evt, err := NewEvent(eventType, conversationID, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(evt)
}
