package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/hideout/internal/auth"
	"github.com/vedran77/hideout/internal/domain"
)

func TestAuthService(t *testing.T) {
	e := newEnv(t)
	tokens := auth.NewTokens("test-secret")
	svc := NewAuthService(e.users, tokens, time.Hour, 15*time.Minute)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Email: " Ada@Example.com ", Name: "Ada", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", reg.User.Email)

	uid, err := tokens.Verify(reg.AccessToken, auth.AudienceAPI)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, uid)

	_, err = svc.Register(ctx, RegisterInput{Email: "ada@example.com", Name: "Ada2", Password: "Secret123"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCreds)

	login, err := svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	st, err := svc.SocketToken(ctx, reg.User.ID)
	require.NoError(t, err)
	uid, err = tokens.Verify(st.Token, auth.AudienceSocket)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, uid)

	// session tokens are not accepted by the gateway
	_, err = tokens.Verify(reg.AccessToken, auth.AudienceSocket)
	assert.Error(t, err)

	_, err = svc.SocketToken(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}
