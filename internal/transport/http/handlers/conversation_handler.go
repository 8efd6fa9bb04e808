package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/service"
	"github.com/vedran77/hideout/internal/transport/http/middleware"
)

type ConversationHandler struct {
	convService *service.ConversationService
}

func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.convService.List(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateDirectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.PartnerID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "MISSING_PARTNER_ID", "partner_id is required")
		return
	}

	conv, created, err := h.convService.CreateDirect(r.Context(), userID, input.PartnerID)
	if err != nil {
		writeDomainError(w, "create direct conversation", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

func (h *ConversationHandler) CreateAI(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	conv, err := h.convService.CreateAI(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "create ai conversation", err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	users, err := h.convService.SearchUsers(r.Context(), userID, r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, "search users", err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}
