package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/hideout/internal/ai"
	"github.com/vedran77/hideout/internal/auth"
	"github.com/vedran77/hideout/internal/broker"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/presence"
	"github.com/vedran77/hideout/internal/repository/sqlite"
	"github.com/vedran77/hideout/internal/service"
	"github.com/vedran77/hideout/internal/transport/ws"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type testServer struct {
	srv     *httptest.Server
	tracker *presence.Tracker
	aiDown  atomic.Bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := sqlite.Open(fmt.Sprintf("file:http_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))

	ts := &testServer{}
	provider := ai.ProviderFunc(func(ctx context.Context, _ []ai.Message) (string, error) {
		if ts.aiDown.Load() {
			return "", errors.New("backend down")
		}
		return "hello", nil
	})

	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	tokens := auth.NewTokens("test-secret")

	ts.tracker = presence.NewTracker(nil)
	hub := ws.NewHub(ts.tracker)
	b := broker.NewLocal()
	b.Subscribe(hub.Deliver)
	notifier := ws.NewBrokerNotifier(b)
	ts.tracker.SetEmitter(hub)

	fanout := service.NewFanout(convs)
	fanout.SetNotifier(notifier)
	aiTurn := service.NewAITurnService(convs, fanout, provider, service.AITurnConfig{Timeout: time.Second})

	ts.srv = httptest.NewServer(NewRouter(RouterDeps{
		Tokens:        tokens,
		Auth:          service.NewAuthService(users, tokens, time.Hour, time.Minute),
		Conversations: service.NewConversationService(convs, users),
		Messages:      service.NewMessageService(convs, fanout, aiTurn),
		Tracker:       ts.tracker,
		Hub:           hub,
	}))
	t.Cleanup(func() {
		hub.Close()
		ts.srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type account struct {
	id    uuid.UUID
	token string
}

func (ts *testServer) register(t *testing.T, name string) account {
	t.Helper()
	var resp service.AuthResponse
	status := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    strings.ToLower(name) + "@example.com",
		"name":     name,
		"password": "Secret123",
	}, &resp)
	require.Equal(t, http.StatusCreated, status)
	return account{id: resp.User.ID, token: resp.AccessToken}
}

type errorBody struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
	Message *domain.Message `json:"message"`
}

func TestRouter_Health(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", nil, nil))
}

func TestRouter_AuthFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "Alice")

	var dup errorBody
	status := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "name": "Alice", "password": "Secret123",
	}, &dup)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "EMAIL_TAKEN", dup.Error.Code)

	var login service.AuthResponse
	status = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "Secret123",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, login.AccessToken)

	var bad errorBody
	status = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "Wrong1234",
	}, &bad)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", bad.Error.Code)

	var sock service.SocketToken
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/auth/socket-token", login.AccessToken, nil, &sock))
	assert.NotEmpty(t, sock.Token)

	// A socket token is not accepted by the REST API.
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/conversations", sock.Token, nil, nil))
}

func TestRouter_DirectConversationDelivers(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "Alice")
	bob := ts.register(t, "Bob")

	var conv domain.Conversation
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.token,
		map[string]uuid.UUID{"partner_id": bob.id}, &conv))

	var again domain.Conversation
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/conversations/direct", bob.token,
		map[string]uuid.UUID{"partner_id": alice.id}, &again))
	assert.Equal(t, conv.ID, again.ID)

	var sock service.SocketToken
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/auth/socket-token", bob.token, nil, &sock))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/ws?token="+sock.Token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return ts.tracker.IsOnline(bob.id) }, 2*time.Second, 10*time.Millisecond)

	var sent service.SendResult
	path := "/api/v1/conversations/" + conv.ID.String() + "/messages"
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, path, alice.token,
		map[string]string{"content": "hey bob"}, &sent))

	for {
		var evt ws.Event
		require.NoError(t, wsjson.Read(ctx, conn, &evt))
		if evt.Type != ws.EventTypeMessageNew {
			continue
		}
		var p ws.MessagePayload
		require.NoError(t, json.Unmarshal(evt.Payload, &p))
		assert.Equal(t, sent.Message.ID, p.Message.ID)
		assert.Equal(t, "hey bob", p.Message.Content)
		break
	}

	var page service.MessageListResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, path, bob.token, nil, &page))
	require.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)

	var snapshot []presenceEntry
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/presence?user_id="+bob.id.String()+","+alice.id.String(), alice.token, nil, &snapshot))
	require.Len(t, snapshot, 2)
	assert.True(t, snapshot[0].Online)
	assert.False(t, snapshot[1].Online)
}

func TestRouter_Errors(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "Alice")
	bob := ts.register(t, "Bob")
	eve := ts.register(t, "Eve")

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/conversations", "", nil, nil))

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.token,
		map[string]uuid.UUID{"partner_id": alice.id}, &body))
	assert.Equal(t, "SELF_CONVERSATION", body.Error.Code)

	body = errorBody{}
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.token,
		map[string]uuid.UUID{"partner_id": uuid.New()}, &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)

	var conv domain.Conversation
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.token,
		map[string]uuid.UUID{"partner_id": bob.id}, &conv))
	path := "/api/v1/conversations/" + conv.ID.String() + "/messages"

	body = errorBody{}
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, path, eve.token,
		map[string]string{"content": "hi"}, &body))
	assert.Equal(t, "FORBIDDEN", body.Error.Code)

	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, path, alice.token,
		map[string]string{"content": "   "}, &body))
	assert.Equal(t, "EMPTY_CONTENT", body.Error.Code)

	body = errorBody{}
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/conversations/"+uuid.NewString()+"/messages", alice.token, nil, &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)

	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/ai-messages", alice.token,
		map[string]string{"content": "hi"}, &body))
	assert.Equal(t, "NOT_AI_CONVERSATION", body.Error.Code)

	var page service.MessageListResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, path, alice.token, nil, &page))
	assert.Empty(t, page.Messages)
}

func TestRouter_AIConversation(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "Alice")

	var conv domain.Conversation
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/conversations/ai", alice.token, nil, &conv))
	assert.Equal(t, domain.ConversationAI, conv.Type)

	var turn service.AITurnResult
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/ai-messages", alice.token,
		map[string]string{"content": "hi"}, &turn))
	require.NotNil(t, turn.AIMessage)
	assert.Equal(t, "hello", turn.AIMessage.Content)
	assert.True(t, turn.AIMessage.IsAIMessage)

	ts.aiDown.Store(true)
	var body errorBody
	require.Equal(t, http.StatusBadGateway, ts.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/messages", alice.token,
		map[string]string{"content": "again"}, &body))
	assert.Equal(t, "AI_BACKEND_FAILURE", body.Error.Code)
	require.NotNil(t, body.Message)
	assert.Equal(t, "again", body.Message.Content)

	var page service.MessageListResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID.String()+"/messages", alice.token, nil, &page))
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "again", page.Messages[2].Content)
}

func TestRouter_SearchUsers(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "Alice")
	ts.register(t, "Alina")
	ts.register(t, "Bob")

	var users []domain.UserRef
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/users/search?q=ali", alice.token, nil, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Alina", users[0].Name)
}
