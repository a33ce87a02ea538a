package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, 24*time.Hour)

	pair, err := svc.Issue(42, true)
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := svc.Parse(pair.AccessToken, AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, claims.IsVerified)
	assert.NotEmpty(t, claims.ID)

	refresh, err := svc.Parse(pair.RefreshToken, RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, refresh.ID)
}

func TestParseRejectsWrongType(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, 24*time.Hour)
	pair, err := svc.Issue(1, false)
	require.NoError(t, err)

	_, err = svc.Parse(pair.RefreshToken, AccessToken)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewTokenService("secret", time.Minute, time.Hour)
	start := time.Now()
	svc.now = func() time.Time { return start }
	pair, err := svc.Issue(1, true)
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = svc.Parse(pair.AccessToken, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenService("other-secret", time.Hour, time.Hour)
	_, err = other.Parse(pair.RefreshToken, RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHelpers(t *testing.T) {
	hash, err := HashPassword("Abcd123!")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("Abcd123!", hash))
	assert.False(t, CheckPasswordHash("abcd123!", hash))

	assert.True(t, IsStrongPassword("Abcd123!"))
	assert.False(t, IsStrongPassword("Abc123!"))
	assert.False(t, IsStrongPassword("abcd1234!"))
	assert.False(t, IsStrongPassword("ABCD1234!"))
	assert.False(t, IsStrongPassword("Abcdefgh!"))
	assert.False(t, IsStrongPassword("Abcd12345"))
}
