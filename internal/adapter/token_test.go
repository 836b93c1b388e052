package adapter

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedJWT(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestTokenSource_AuthHeaders(t *testing.T) {
	src := NewTokenSource("abc123")
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc123"}, src.GetAuthHeaders())

	// A full header value is unwrapped, not double-prefixed.
	wrapped := NewTokenSource("Bearer abc123")
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc123"}, wrapped.GetAuthHeaders())

	empty := NewTokenSource("")
	assert.Empty(t, empty.GetAuthHeaders())
}

func TestTokenSource_IsAuthenticated(t *testing.T) {
	assert.False(t, NewTokenSource("").IsAuthenticated())
	assert.False(t, NewTokenSource("   ").IsAuthenticated())

	// Opaque tokens are presumed valid, the server is the judge.
	assert.True(t, NewTokenSource("opaque-session-token").IsAuthenticated())

	valid := signedJWT(t, time.Now().Add(time.Hour))
	assert.True(t, NewTokenSource(valid).IsAuthenticated())

	expired := signedJWT(t, time.Now().Add(-time.Hour))
	assert.False(t, NewTokenSource(expired).IsAuthenticated())
}

func TestTokenSource_SetToken(t *testing.T) {
	src := NewTokenSource("").(*staticTokenSource)
	assert.False(t, src.IsAuthenticated())

	src.SetToken("fresh-token")
	assert.True(t, src.IsAuthenticated())
	assert.Equal(t, "Bearer fresh-token", src.GetAuthHeaders()["Authorization"])

	src.SetToken("")
	assert.False(t, src.IsAuthenticated())
	assert.Empty(t, src.GetAuthHeaders())
}
