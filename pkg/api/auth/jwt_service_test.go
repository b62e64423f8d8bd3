package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "too-short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: testSecret})
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair("admin")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.IsAccessToken())

	// A refresh token is not accepted where an access token is required.
	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)

	refreshClaims, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, refreshClaims.IsRefreshToken())
}

func TestExpiredTokenIsRejected(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{
		Secret:              testSecret,
		AccessTokenDuration: -time.Minute,
	})
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair("admin")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCredentialValidate(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)

	cred := Credential{Username: "admin", PasswordHash: hash}

	assert.NoError(t, cred.Validate("admin", "correct horse battery"))
	assert.ErrorIs(t, cred.Validate("admin", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, cred.Validate("root", "correct horse battery"), ErrInvalidCredentials)
	assert.Error(t, Credential{}.Validate("admin", "anything"))
}

func TestHashPasswordEnforcesLength(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)
}
