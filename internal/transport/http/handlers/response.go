package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/pkg/validator"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":   "VALIDATION_ERROR",
			"fields": errs,
		},
	})
}

// writeDomainError maps the conversation core's sentinel errors onto
// status codes. op names the operation in the log line for unexpected errors.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "NOT_AUTHENTICATED", "Not authenticated")
	case errors.Is(err, domain.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a participant in this conversation")
	case errors.Is(err, domain.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "EMPTY_CONTENT", "Message content cannot be empty")
	case errors.Is(err, domain.ErrSelfConversation):
		writeError(w, http.StatusBadRequest, "SELF_CONVERSATION", "Cannot start a direct chat with yourself")
	case errors.Is(err, domain.ErrNotAIConversation):
		writeError(w, http.StatusBadRequest, "NOT_AI_CONVERSATION", "Conversation is not an AI conversation")
	case errors.Is(err, domain.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, domain.ErrAIBackendFailure):
		writeError(w, http.StatusBadGateway, "AI_BACKEND_FAILURE", "The assistant could not reply. Please try again.")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return uuid.Nil, false
	}
	return id, true
}
