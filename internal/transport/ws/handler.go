package ws

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/auth"
	"nhooyr.io/websocket"
)

type TokenVerifier interface {
	Verify(token, audience string) (uuid.UUID, error)
}

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (browsers can't set headers on
// the upgrade request); an Authorization bearer header also works.
// An empty originPatterns accepts any origin (dev mode).
func ServeWS(hub *Hub, tokens TokenVerifier, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			tokenStr = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := tokens.Verify(tokenStr, auth.AudienceSocket)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     originPatterns,
			InsecureSkipVerify: len(originPatterns) == 0,
		})
		if err != nil {
			log.Printf("ws: accept error: %v", err)
			return
		}

		client := NewClient(hub, conn, userID)
		if err := hub.Register(client); err != nil {
			if errors.Is(err, ErrHubClosed) {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			conn.Close(websocket.StatusInternalError, "")
			return
		}

		hub.seedPresence(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
