package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// ClientClaims carries the opaque client-token id inside the signed cookie
type ClientClaims struct {
	ClientToken string `json:"clientToken"`
	jwt.RegisteredClaims
}

// ClientTokenService signs and parses the `ct` cookie value. The cookie
// wraps the random client token so a tampered cookie fails fast before any
// registry lookup.
type ClientTokenService struct {
	secret []byte
	expiry time.Duration
}

var signJWTToken = func(token *jwt.Token, secret []byte) (string, error) {
	return token.SignedString(secret)
}

// NewClientTokenService creates a new client token service
func NewClientTokenService(secret string, expiry time.Duration) *ClientTokenService {
	return &ClientTokenService{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Expiry returns the configured cookie lifetime
func (s *ClientTokenService) Expiry() time.Duration {
	return s.expiry
}

// Issue wraps a client token in a signed JWT
func (s *ClientTokenService) Issue(clientToken string) (string, error) {
	now := time.Now()
	claims := &ClientClaims{
		ClientToken: clientToken,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return signJWTToken(token, s.secret)
}

// Parse validates a signed cookie and returns the wrapped client token
func (s *ClientTokenService) Parse(cookie string) (string, error) {
	token, err := jwt.ParseWithClaims(cookie, &ClientClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*ClientClaims)
	if !ok || !token.Valid || claims.ClientToken == "" {
		return "", ErrInvalidToken
	}
	return claims.ClientToken, nil
}
