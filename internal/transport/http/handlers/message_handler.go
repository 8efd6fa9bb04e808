package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/service"
	"github.com/vedran77/hideout/internal/transport/http/middleware"
	"github.com/vedran77/hideout/pkg/validator"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathID(w, r)
	if !ok {
		return
	}

	input, ok := decodeContent(w, r)
	if !ok {
		return
	}

	res, err := h.messageService.Send(r.Context(), userID, conversationID, input)
	if err != nil {
		if res != nil && errors.Is(err, domain.ErrAIBackendFailure) {
			writeAIFailure(w, res.Message)
			return
		}
		writeDomainError(w, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *MessageHandler) SendAI(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathID(w, r)
	if !ok {
		return
	}

	input, ok := decodeContent(w, r)
	if !ok {
		return
	}

	res, err := h.messageService.SendAI(r.Context(), userID, conversationID, input)
	if err != nil {
		if res != nil && errors.Is(err, domain.ErrAIBackendFailure) {
			writeAIFailure(w, res.UserMessage)
			return
		}
		writeDomainError(w, "send ai message", err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathID(w, r)
	if !ok {
		return
	}

	// Parse query params
	var before *uuid.UUID
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		id, err := uuid.Parse(beforeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid before cursor")
			return
		}
		before = &id
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	resp, err := h.messageService.List(r.Context(), userID, conversationID, before, limit)
	if err != nil {
		writeDomainError(w, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeContent(w http.ResponseWriter, r *http.Request) (service.SendMessageInput, bool) {
	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return input, false
	}
	if errs := validator.ValidateContent(input.Content); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return input, false
	}
	return input, true
}

// writeAIFailure reports the backend error and still hands back the stored
// human message so the client can confirm its optimistic entry.
func writeAIFailure(w http.ResponseWriter, stored *domain.Message) {
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"error": map[string]string{
			"code":    "AI_BACKEND_FAILURE",
			"message": "The assistant could not reply. Please try again.",
		},
		"message": stored,
	})
}
