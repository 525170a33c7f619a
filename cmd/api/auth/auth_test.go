package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(Config{
		AccessSecret:  "access-secret",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    24 * time.Hour,
	})
}

func TestIssueAndParseTokens(t *testing.T) {
	m := newTestManager()
	userID := uuid.New()

	tokens, err := m.IssueTokens(userID, "reader@library.test")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.NotEqual(t, tokens.AccessToken, tokens.RefreshToken)

	claims, err := m.ParseAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "reader@library.test", claims.Email)

	claims, err = m.ParseRefreshToken(tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestParseRejectsSwappedTokens(t *testing.T) {
	m := newTestManager()
	tokens, err := m.IssueTokens(uuid.New(), "reader@library.test")
	require.NoError(t, err)

	_, err = m.ParseAccessToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseRefreshToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsSameSecretWrongUse(t *testing.T) {
	m := NewManager(Config{AccessSecret: "shared", AccessTTL: time.Minute, RefreshSecret: "shared", RefreshTTL: time.Minute})
	tokens, err := m.IssueTokens(uuid.New(), "reader@library.test")
	require.NoError(t, err)

	_, err = m.ParseAccessToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := newTestManager()
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tokens, err := m.IssueTokens(uuid.New(), "reader@library.test")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ParseAccessToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	other := NewManager(Config{AccessSecret: "someone-else", AccessTTL: time.Minute, RefreshSecret: "x", RefreshTTL: time.Minute})
	tokens, err := other.IssueTokens(uuid.New(), "reader@library.test")
	require.NoError(t, err)

	_, err = newTestManager().ParseAccessToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": uuid.NewString(), "token_use": useAccess})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestManager().ParseAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, ComparePassword(hash, "correct horse"))
	assert.False(t, ComparePassword(hash, "wrong horse"))
}

func TestRefreshTokenHash(t *testing.T) {
	tokens, err := newTestManager().IssueTokens(uuid.New(), "reader@library.test")
	require.NoError(t, err)
	require.Greater(t, len(tokens.RefreshToken), 72)

	hash, err := HashRefreshToken(tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, CompareRefreshToken(hash, tokens.RefreshToken))
	assert.False(t, CompareRefreshToken(hash, tokens.RefreshToken+"x"))
}
