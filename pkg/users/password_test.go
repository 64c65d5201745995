package users

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, CheckPassword(hash, "s3cret"))
	assert.ErrorIs(t, CheckPassword(hash, "S3cret"), ErrInvalidCredentials)
}

func TestCheckPassword_Placeholder(t *testing.T) {
	for _, pw := range []string{"", "password", DisallowPasswordLogin} {
		assert.ErrorIs(t, CheckPassword(DisallowPasswordLogin, pw), ErrPasswordLoginDisabled)
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	assert.ErrorIs(t, CheckPassword("not-a-bcrypt-hash", "x"), ErrInvalidCredentials)
}

func TestGenerateTokenAuth(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateTokenAuth()
		require.NoError(t, err)
		assert.Len(t, token, 32)
		_, err = hex.DecodeString(token)
		assert.NoError(t, err)
		assert.False(t, seen[token], "duplicate token")
		seen[token] = true
	}
}
