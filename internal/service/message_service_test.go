package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/hideout/internal/domain"
)

func TestSend_DeliversToPeerOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.user(t, "Alice"), e.user(t, "Bob")

	conv, _, err := e.conversations.CreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	res, err := e.messages.Send(ctx, alice.ID, conv.ID, SendMessageInput{Content: "hey bob"})
	require.NoError(t, err)
	assert.Equal(t, "hey bob", res.Message.Content)
	assert.Nil(t, res.Reply)

	pushes := e.notifier.pushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, res.Message.ID, pushes[0].msg.ID)
	assert.Equal(t, []uuid.UUID{bob.ID}, pushes[0].recipients)
}

func TestSend_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.user(t, "Alice"), e.user(t, "Bob"), e.user(t, "Carol")

	conv, _, err := e.conversations.CreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = e.messages.Send(ctx, alice.ID, conv.ID, SendMessageInput{Content: "  \n "})
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = e.messages.Send(ctx, carol.ID, conv.ID, SendMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = e.messages.Send(ctx, alice.ID, uuid.New(), SendMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	assert.Empty(t, e.history(t, conv.ID))
	assert.Empty(t, e.notifier.pushes())
}

func TestSend_DeliveryFailureDoesNotFailSend(t *testing.T) {
	e := newEnv(t)
	e.notifier.err = errors.New("broker down")
	ctx := context.Background()
	alice, bob := e.user(t, "Alice"), e.user(t, "Bob")

	conv, _, err := e.conversations.CreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	res, err := e.messages.Send(ctx, alice.ID, conv.ID, SendMessageInput{Content: "still stored"})
	require.NoError(t, err)
	assert.NotNil(t, res.Message)
	assert.Equal(t, []string{"user:still stored"}, e.history(t, conv.ID))
}

func TestSend_CancelledCallerStillDelivers(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.user(t, "Alice"), e.user(t, "Bob")

	conv, _, err := e.conversations.CreateDirect(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := e.convs.AppendMessage(context.Background(), domain.NewMessage{
		ConversationID: conv.ID, SenderID: &alice.ID, Content: "late",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.fanout.Deliver(ctx, msg)

	assert.Len(t, e.notifier.pushes(), 1)
}

func TestList_Pagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.user(t, "Alice"), e.user(t, "Bob")

	conv, _, err := e.conversations.CreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := e.messages.Send(ctx, alice.ID, conv.ID, SendMessageInput{Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	page, err := e.messages.List(ctx, bob.ID, conv.ID, nil, 3)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "m2", page.Messages[0].Content)
	assert.Equal(t, "m4", page.Messages[2].Content)

	rest, err := e.messages.List(ctx, bob.ID, conv.ID, &page.Messages[0].ID, 3)
	require.NoError(t, err)
	assert.False(t, rest.HasMore)
	require.Len(t, rest.Messages, 2)
	assert.Equal(t, "m0", rest.Messages[0].Content)

	_, err = e.messages.List(ctx, e.user(t, "Eve").ID, conv.ID, nil, 3)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestRecipients(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []uuid.UUID{b}, recipients([]uuid.UUID{a, b}, &a))
	assert.Equal(t, []uuid.UUID{a, b}, recipients([]uuid.UUID{a, b}, nil))
	assert.Empty(t, recipients([]uuid.UUID{a}, &a))
}
