package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassword(t *testing.T) {
	hash, err := HashPassword("Secret123")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("Secret123", hash))
	assert.False(t, VerifyPassword("secret123", hash))
	assert.False(t, VerifyPassword("Secret123", "garbage"))

	other, err := HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ")
}
