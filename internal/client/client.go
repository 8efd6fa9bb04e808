package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/service"
	"github.com/vedran77/hideout/internal/transport/ws"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// APIError is a non-2xx response. Message is the server's text, unaltered.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Stored is set when the server kept the message despite the error.
	Stored *domain.Message
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Client talks to one server as one authenticated user.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *Client) Register(ctx context.Context, email, name, password string) (*domain.User, error) {
	return c.authenticate(ctx, "/api/v1/auth/register", service.RegisterInput{Email: email, Name: name, Password: password})
}

// Login exchanges credentials for a session token and keeps it.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	return c.authenticate(ctx, "/api/v1/auth/login", service.LoginInput{Email: email, Password: password})
}

func (c *Client) authenticate(ctx context.Context, path string, input any) (*domain.User, error) {
	var resp service.AuthResponse
	if err := c.do(ctx, http.MethodPost, path, input, &resp); err != nil {
		return nil, err
	}
	c.Token = resp.AccessToken
	return resp.User, nil
}

// StartDirect opens (or reuses) the direct conversation with partnerID.
func (c *Client) StartDirect(ctx context.Context, partnerID uuid.UUID) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/direct", service.CreateDirectInput{PartnerID: partnerID}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) SocketToken(ctx context.Context) (string, error) {
	var tok service.SocketToken
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/socket-token", nil, &tok); err != nil {
		return "", err
	}
	return tok.Token, nil
}

// SendMessage posts content to a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (*service.SendResult, error) {
	var res service.SendResult
	path := "/api/v1/conversations/" + conversationID.String() + "/messages"
	if err := c.do(ctx, http.MethodPost, path, service.SendMessageInput{Content: content}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FetchMessages returns the newest page of history, oldest first.
func (c *Client) FetchMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/v1/conversations/" + conversationID.String() + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page service.MessageListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Messages, nil
}

// Send runs one optimistic send against st. A failed send is recorded in
// st.Failure() unless the server stored the message anyway.
func (c *Client) Send(ctx context.Context, st *State, senderID uuid.UUID, content string) error {
	tempID := NewTempID()
	st.Apply(OptimisticAppend{TempID: tempID, SenderID: senderID, Content: content})

	res, err := c.SendMessage(ctx, st.ConversationID(), content)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Stored != nil {
			st.Apply(ConfirmReplace{TempID: tempID, Message: *apiErr.Stored})
			return err
		}
		st.Apply(SendFailed{TempID: tempID, Err: err})
		return err
	}

	st.Apply(ConfirmReplace{TempID: tempID, Message: *res.Message})
	if res.Reply != nil {
		st.Apply(PushReceived{Message: *res.Reply})
	}
	return nil
}

// Resync replaces st with the server's current history.
func (c *Client) Resync(ctx context.Context, st *State) error {
	msgs, err := c.FetchMessages(ctx, st.ConversationID(), 100)
	if err != nil {
		return err
	}
	st.Apply(FullResync{Messages: msgs})
	return nil
}

// Listen opens the push socket and calls handle for every event until ctx
// ends or the connection drops.
func (c *Client) Listen(ctx context.Context, handle func(ws.Event)) error {
	tok, err := c.SocketToken(ctx)
	if err != nil {
		return fmt.Errorf("socket token: %w", err)
	}

	wsURL := "ws" + strings.TrimPrefix(c.BaseURL, "http") + "/ws?token=" + url.QueryEscape(tok)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var evt ws.Event
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handle(evt)
	}
}

// Follow keeps st current from pushed message:new events.
func (c *Client) Follow(ctx context.Context, st *State) error {
	return c.Listen(ctx, func(evt ws.Event) {
		if evt.Type != ws.EventTypeMessageNew {
			return
		}
		var p ws.MessagePayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		st.Apply(PushReceived{Message: p.Message})
	})
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message *domain.Message `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env errorEnvelope
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Stored = env.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
