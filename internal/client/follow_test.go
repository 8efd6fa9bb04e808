package client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/hideout/internal/ai"
	"github.com/vedran77/hideout/internal/auth"
	"github.com/vedran77/hideout/internal/broker"
	"github.com/vedran77/hideout/internal/presence"
	"github.com/vedran77/hideout/internal/repository/sqlite"
	"github.com/vedran77/hideout/internal/service"
	"github.com/vedran77/hideout/internal/transport/http/handlers"
	"github.com/vedran77/hideout/internal/transport/ws"
)

func startServer(t *testing.T) (string, *presence.Tracker) {
	t.Helper()
	db, err := sqlite.Open(fmt.Sprintf("file:client_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))

	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	tokens := auth.NewTokens("test-secret")
	tracker := presence.NewTracker(nil)
	hub := ws.NewHub(tracker)
	b := broker.NewLocal()
	b.Subscribe(hub.Deliver)
	notifier := ws.NewBrokerNotifier(b)
	tracker.SetEmitter(hub)
	fanout := service.NewFanout(convs)
	fanout.SetNotifier(notifier)
	provider := ai.ProviderFunc(func(context.Context, []ai.Message) (string, error) { return "hello", nil })

	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterDeps{
		Tokens:        tokens,
		Auth:          service.NewAuthService(users, tokens, time.Hour, time.Minute),
		Conversations: service.NewConversationService(convs, users),
		Messages:      service.NewMessageService(convs, fanout, service.NewAITurnService(convs, fanout, provider, service.AITurnConfig{})),
		Tracker:       tracker,
		Hub:           hub,
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return srv.URL, tracker
}

func TestFollow_PeerSeesMessageOnce(t *testing.T) {
	baseURL, tracker := startServer(t)
	ctx := context.Background()

	alice := New(baseURL, "")
	aliceUser, err := alice.Register(ctx, "alice@example.com", "Alice", "Secret123")
	require.NoError(t, err)
	bob := New(baseURL, "")
	bobUser, err := bob.Register(ctx, "bob@example.com", "Bob", "Secret123")
	require.NoError(t, err)

	conv, err := alice.StartDirect(ctx, bobUser.ID)
	require.NoError(t, err)

	aliceState := NewState(conv.ID)
	bobState := NewState(conv.ID)

	followCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- bob.Follow(followCtx, bobState) }()
	require.Eventually(t, func() bool { return tracker.IsOnline(bobUser.ID) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.Send(ctx, aliceState, aliceUser.ID, "hi bob"))
	require.Eventually(t, func() bool { return len(bobState.Entries()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// A resync after the push must not double the message.
	require.NoError(t, bob.Resync(ctx, bobState))
	entries := bobState.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "hi bob", entries[0].Message.Content)

	aliceEntries := aliceState.Entries()
	require.Len(t, aliceEntries, 1)
	assert.False(t, aliceEntries[0].Pending)
	assert.Equal(t, entries[0].Message.ID, aliceEntries[0].Message.ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
