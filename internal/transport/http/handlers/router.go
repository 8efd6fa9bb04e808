package handlers

import (
	"net/http"

	"github.com/vedran77/hideout/internal/auth"
	"github.com/vedran77/hideout/internal/presence"
	"github.com/vedran77/hideout/internal/service"
	"github.com/vedran77/hideout/internal/transport/http/middleware"
	"github.com/vedran77/hideout/internal/transport/ws"
)

type RouterDeps struct {
	Tokens         *auth.Tokens
	Auth           *service.AuthService
	Conversations  *service.ConversationService
	Messages       *service.MessageService
	Tracker        *presence.Tracker
	Hub            *ws.Hub
	AllowedOrigins []string
}

func NewRouter(d RouterDeps) http.Handler {
	authHandler := NewAuthHandler(d.Auth)
	convHandler := NewConversationHandler(d.Conversations)
	messageHandler := NewMessageHandler(d.Messages)
	presenceHandler := NewPresenceHandler(d.Tracker)

	authMw := middleware.Auth(d.Tokens)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("GET /ws", ws.ServeWS(d.Hub, d.Tokens, d.AllowedOrigins))

	// Protected - Auth
	mux.Handle("GET /api/v1/auth/socket-token", authMw(http.HandlerFunc(authHandler.SocketToken)))

	// Protected - Users
	mux.Handle("GET /api/v1/users/search", authMw(http.HandlerFunc(convHandler.SearchUsers)))
	mux.Handle("GET /api/v1/presence", authMw(http.HandlerFunc(presenceHandler.Get)))

	// Protected - Conversations
	mux.Handle("GET /api/v1/conversations", authMw(http.HandlerFunc(convHandler.List)))
	mux.Handle("POST /api/v1/conversations/direct", authMw(http.HandlerFunc(convHandler.CreateDirect)))
	mux.Handle("POST /api/v1/conversations/ai", authMw(http.HandlerFunc(convHandler.CreateAI)))

	// Protected - Messages
	mux.Handle("GET /api/v1/conversations/{id}/messages", authMw(http.HandlerFunc(messageHandler.List)))
	mux.Handle("POST /api/v1/conversations/{id}/messages", authMw(http.HandlerFunc(messageHandler.Send)))
	mux.Handle("POST /api/v1/conversations/{id}/ai-messages", authMw(http.HandlerFunc(messageHandler.SendAI)))

	return middleware.CORS(d.AllowedOrigins)(mux)
}
