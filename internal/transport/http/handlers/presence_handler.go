package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/presence"
)

type PresenceHandler struct {
	tracker *presence.Tracker
}

func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

type presenceEntry struct {
	UserID uuid.UUID `json:"user_id"`
	Online bool      `json:"online"`
}

// Get answers ?user_id=a,b,c, or lists everyone online when no ids are given.
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		online := h.tracker.Online()
		out := make([]presenceEntry, 0, len(online))
		for _, id := range online {
			out = append(out, presenceEntry{UserID: id, Online: true})
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var out []presenceEntry
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
			return
		}
		out = append(out, presenceEntry{UserID: id, Online: h.tracker.IsOnline(id)})
	}
	writeJSON(w, http.StatusOK, out)
}
