package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "scholar-match")

	tok, err := m.GenerateToken(TokenSubject{UserID: "u1", Role: "academician", ProfileID: "P123", Admin: true}, time.Hour)
	require.NoError(t, err)

	claims, err := m.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "academician", claims.Role)
	assert.Equal(t, "P123", claims.ProfileID)
	assert.True(t, claims.Admin)
}

func TestJWTRejectsBadTokens(t *testing.T) {
	m := NewJWTManager("secret", "scholar-match")

	t.Run("expired", func(t *testing.T) {
		tok, err := m.GenerateToken(TokenSubject{UserID: "u1"}, -time.Minute)
		require.NoError(t, err)
		_, err = m.ParseToken(tok)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager("other", "scholar-match")
		tok, err := other.GenerateToken(TokenSubject{UserID: "u1"}, time.Hour)
		require.NoError(t, err)
		_, err = m.ParseToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTManager("secret", "someone-else")
		tok, err := other.GenerateToken(TokenSubject{UserID: "u1"}, time.Hour)
		require.NoError(t, err)
		_, err = m.ParseToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ParseToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
