package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTokenService_IssueAndParse(t *testing.T) {
	svc := NewClientTokenService("test-secret", 15*24*time.Hour)

	cookie, err := svc.Issue("client-token-123")
	require.NoError(t, err)
	require.NotEmpty(t, cookie)

	clientToken, err := svc.Parse(cookie)
	require.NoError(t, err)
	assert.Equal(t, "client-token-123", clientToken)
}

func TestClientTokenService_RejectsWrongSecret(t *testing.T) {
	issuer := NewClientTokenService("secret-a", time.Hour)
	parser := NewClientTokenService("secret-b", time.Hour)

	cookie, err := issuer.Issue("client-token-123")
	require.NoError(t, err)

	_, err = parser.Parse(cookie)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClientTokenService_RejectsExpired(t *testing.T) {
	svc := NewClientTokenService("test-secret", -time.Minute)

	cookie, err := svc.Issue("client-token-123")
	require.NoError(t, err)

	_, err = svc.Parse(cookie)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestClientTokenService_RejectsGarbage(t *testing.T) {
	svc := NewClientTokenService("test-secret", time.Hour)

	_, err := svc.Parse("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Parse("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClientTokenService_Expiry(t *testing.T) {
	svc := NewClientTokenService("test-secret", 15*24*time.Hour)
	assert.Equal(t, 15*24*time.Hour, svc.Expiry())
}
