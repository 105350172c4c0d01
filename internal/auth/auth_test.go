package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestParseValidToken(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "unistellar.identity"}
	signed := signToken(t, jwt.MapClaims{
		"sub":    "user-1",
		"iss":    "unistellar.identity",
		"scopes": []string{ScopeActivitiesRead, ScopeActivitiesWrite},
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	claims, err := Parse(signed, cfg)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeActivitiesRead))
	require.True(t, claims.HasScope(ScopeActivitiesWrite))
	require.False(t, claims.HasScope("admin"))
}

func TestParseSpaceSeparatedScopes(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "unistellar.identity"}
	signed := signToken(t, jwt.MapClaims{
		"sub":    "user-1",
		"iss":    "unistellar.identity",
		"scopes": "activities:read activities:write",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	claims, err := Parse(signed, cfg)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeActivitiesRead))
	require.True(t, claims.HasScope(ScopeActivitiesWrite))
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "unistellar.identity"}
	signed := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := Parse(signed, cfg)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsMissingSubject(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "unistellar.identity"}
	signed := signToken(t, jwt.MapClaims{
		"iss": "unistellar.identity",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := Parse(signed, cfg)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsEmptyToken(t *testing.T) {
	_, err := Parse("  ", Config{Secret: testSecret})
	require.ErrorIs(t, err, ErrMissingToken)
}
