package auth

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTM() *TokenManager {
	return NewTokenManager("pixelmart", "access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
}

func TestGenerateAndParseAccess(t *testing.T) {
	tm := newTM()
	access, refresh, exp, err := tm.GeneratePair("u1", "admin")
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, time.Minute)

	claims, err := tm.ParseAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestParseAccessRejects(t *testing.T) {
	tm := newTM()
	_, refresh, _, err := tm.GeneratePair("u1", "user")
	require.NoError(t, err)

	other := NewTokenManager("someone-else", "access-secret", "refresh-secret", time.Minute, time.Minute)
	foreign, _, _, err := other.GeneratePair("u1", "user")
	require.NoError(t, err)

	expired := newTM()
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, _, err := expired.GeneratePair("u1", "user")
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"refresh token":  refresh,
		"foreign issuer": foreign,
		"expired":        stale,
		"garbage":        "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tm.ParseAccess(tok)
			assert.True(t, errors.Is(err, errors.Unauthorized), "got %v", err)
		})
	}
}

func TestParseRefresh(t *testing.T) {
	tm := newTM()
	access, refresh, _, err := tm.GeneratePair("u1", "user")
	require.NoError(t, err)

	claims, err := tm.ParseRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, TokenRefresh, claims.Type)

	_, err = tm.ParseRefresh(access)
	assert.True(t, errors.Is(err, errors.Unauthorized), "got %v", err)
}
