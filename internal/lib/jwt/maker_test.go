package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	maker := NewJWTMaker("test-secret", time.Hour)

	tokenStr, err := maker.GenerateToken("alice", "uid-123")
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := maker.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "uid-123", claims.UserUID)
}

func TestParseToken_WrongSecret(t *testing.T) {
	maker := NewJWTMaker("test-secret", time.Hour)
	other := NewJWTMaker("another-secret", time.Hour)

	tokenStr, err := maker.GenerateToken("alice", "uid-123")
	require.NoError(t, err)

	_, err = other.ParseToken(tokenStr)
	require.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	maker := NewJWTMaker("test-secret", -time.Minute)

	tokenStr, err := maker.GenerateToken("alice", "uid-123")
	require.NoError(t, err)

	_, err = maker.ParseToken(tokenStr)
	require.Error(t, err)
}
