package service

import (
	"testing"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndParse(t *testing.T) {
	tokens, err := NewTokenService("secret", "doorbell", time.Minute)
	require.NoError(t, err)

	raw, err := tokens.Issue("call-1", "prop-1", domain.RoleGuest)
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "call-1", claims.CallID)
	assert.Equal(t, "prop-1", claims.PropertyID)
	assert.Equal(t, domain.RoleGuest, claims.Role)
	assert.Equal(t, "doorbell", claims.Issuer)
}

func TestTokenService_PropertyToken(t *testing.T) {
	tokens, err := NewTokenService("secret", "doorbell", time.Minute)
	require.NoError(t, err)

	raw, err := tokens.IssueProperty("prop-1", "owner-1")
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Empty(t, claims.CallID)
	assert.Equal(t, domain.RoleOwner, claims.Role)
	assert.Equal(t, "owner-1", claims.Subject)
}

func TestTokenService_Rejects(t *testing.T) {
	tokens, err := NewTokenService("secret", "doorbell", time.Minute)
	require.NoError(t, err)
	raw, err := tokens.Issue("call-1", "prop-1", domain.RoleOwner)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenService("other", "doorbell", time.Minute)
		require.NoError(t, err)
		_, err = other.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewTokenService("secret", "someone-else", time.Minute)
		require.NoError(t, err)
		_, err = other.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := *tokens
		later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err := later.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := tokens.Issue("call-1", "prop-1", domain.Role("admin"))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService("", "doorbell", time.Minute)
	assert.ErrorIs(t, err, ErrTokenSecret)
}
