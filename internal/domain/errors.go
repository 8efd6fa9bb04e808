package domain

import "errors"

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrNotParticipant       = errors.New("you are not a participant in this conversation")
	ErrEmptyContent         = errors.New("message content cannot be empty")
	ErrSelfConversation     = errors.New("cannot start a direct chat with yourself")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotAIConversation    = errors.New("conversation is not an AI conversation")
	ErrAIBackendFailure     = errors.New("ai backend failure")
	ErrDeliveryFailure      = errors.New("delivery failure")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already taken")
	ErrInvalidCreds         = errors.New("invalid email or password")
)
