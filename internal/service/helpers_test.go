package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/hideout/internal/ai"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/repository/sqlite"
)

type pushed struct {
	msg        domain.Message
	recipients []uuid.UUID
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []pushed
	err   error
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, msg *domain.Message, recipients []uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, pushed{msg: *msg, recipients: recipients})
	return n.err
}

func (n *recordingNotifier) pushes() []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pushed(nil), n.calls...)
}

type recordingProvider struct {
	reply string
	err   error
	last  []ai.Message
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.last = append([]ai.Message(nil), messages...)
	return p.reply, p.err
}

type env struct {
	users    *sqlite.UserRepo
	convs    *sqlite.ConversationRepo
	notifier *recordingNotifier
	provider *recordingProvider
	fanout   *Fanout

	conversations *ConversationService
	messages      *MessageService
	aiTurn        *AITurnService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	e := &env{
		users:    sqlite.NewUserRepo(db),
		convs:    sqlite.NewConversationRepo(db),
		notifier: &recordingNotifier{},
		provider: &recordingProvider{reply: "hello"},
	}
	e.fanout = NewFanout(e.convs)
	e.fanout.SetNotifier(e.notifier)
	e.aiTurn = NewAITurnService(e.convs, e.fanout, e.provider, AITurnConfig{
		SystemPrompt: "be brief",
		Timeout:      time.Second,
	})
	e.conversations = NewConversationService(e.convs, e.users)
	e.messages = NewMessageService(e.convs, e.fanout, e.aiTurn)
	return e
}

func (e *env) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(name) + "@example.com",
		Name:         name,
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *env) history(t *testing.T, conversationID uuid.UUID) []string {
	t.Helper()
	msgs, err := e.convs.ListMessages(context.Background(), conversationID, nil, 100)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for i := range msgs {
		out = append(out, msgs[i].Role()+":"+msgs[i].Content)
	}
	return out
}
