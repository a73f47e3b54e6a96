package auth

import (
	"testing"
	"time"

	"kanbanhub/internal/config"
	"kanbanhub/internal/model"

	"github.com/stretchr/testify/require"
)

func testTokens() *Tokens {
	return NewTokens(config.SecurityConfig{
		JWTSecret:       "access-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
}

func TestIssueAndParse(t *testing.T) {
	tokens := testTokens()
	user := &model.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada"}

	pair, err := tokens.Issue(user)
	require.NoError(t, err)

	id, err := tokens.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", id)

	id, err = tokens.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "u1", id)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	// refresh 密钥为空时两种 token 共用同一个密钥
	tokens := testTokens()
	pair, err := tokens.Issue(&model.User{ID: "u1"})
	require.NoError(t, err)

	_, err = tokens.ParseRefresh(pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = tokens.ParseAccess(pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredAccessToken(t *testing.T) {
	tokens := testTokens()
	issued := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	pair, err := tokens.Issue(&model.User{ID: "u1"})
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(16 * time.Minute) }
	_, err = tokens.ParseAccess(pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
}

func TestWrongSecretRejected(t *testing.T) {
	pair, err := testTokens().Issue(&model.User{ID: "u1"})
	require.NoError(t, err)

	other := NewTokens(config.SecurityConfig{JWTSecret: "different", AccessTokenTTL: time.Minute})
	_, err = other.ParseAccess(pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}
