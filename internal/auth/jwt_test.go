package auth

import (
	"testing"
	"time"

	"eduhub/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "eduhub",
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	cfg := testConfig()
	tok, err := GenerateAccessToken(cfg, 42, "rina@example.com", "STUDENT")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "STUDENT", claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestAccessToken_Rejections(t *testing.T) {
	cfg := testConfig()
	refresh, err := GenerateRefreshToken(cfg, 42)
	require.NoError(t, err)

	other := testConfig()
	other.Issuer = "someone-else"
	foreign, err := GenerateAccessToken(other, 42, "rina@example.com", "STUDENT")
	require.NoError(t, err)

	// same secret for both kinds; the audience still separates them
	shared := testConfig()
	shared.RefreshSecret = shared.AccessSecret
	sharedRefresh, err := GenerateRefreshToken(shared, 42)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 42, "role": "ADMIN"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noRole, err := GenerateAccessToken(cfg, 42, "rina@example.com", "")
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"refresh token":  refresh,
		"foreign issuer": foreign,
		"shared secret":  sharedRefresh,
		"unsigned":       none,
		"missing role":   noRole,
		"garbage":        "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(shared, tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAccessToken_Expiry(t *testing.T) {
	cfg := testConfig()
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now = func() time.Time { return start }
	t.Cleanup(func() { now = time.Now })

	tok, err := GenerateAccessToken(cfg, 7, "andi@example.com", "ADMIN")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	require.NoError(t, err)

	now = func() time.Time { return start.Add(16 * time.Minute) }
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	cfg := testConfig()
	tok, err := GenerateRefreshToken(cfg, 9)
	require.NoError(t, err)

	id, err := ParseRefreshToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(9), id)

	access, err := GenerateAccessToken(cfg, 9, "x@example.com", "STUDENT")
	require.NoError(t, err)
	_, err = ParseRefreshToken(cfg, access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
