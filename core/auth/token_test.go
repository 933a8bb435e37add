package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.GenerateToken("alice", "Alice")
	require.NoError(t, err)

	claims, err := issuer.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	token, err := NewTokenIssuer("one", time.Hour).GenerateToken("alice", "")
	require.NoError(t, err)

	_, err = NewTokenIssuer("two", time.Hour).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", -time.Minute)
	token, err := issuer.GenerateToken("alice", "")
	require.NoError(t, err)

	_, err = issuer.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateTokenNeedsUser(t *testing.T) {
	_, err := NewTokenIssuer("secret", time.Hour).GenerateToken("", "")
	assert.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	_, err := NewTokenIssuer("secret", time.Hour).ParseToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
