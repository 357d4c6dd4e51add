// Package token generates and compares the opaque credentials the linking
// server hands out: pairing codes, session tokens and wallet tokens.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// CodeBytes keeps pairing codes short enough to relay by QR scan
	CodeBytes = 8
	// TokenBytes sizes long-lived session and wallet tokens
	TokenBytes = 32
)

// NewCode mints a random pairing code
func NewCode() (string, error) {
	return random(CodeBytes)
}

// NewToken mints a random session or wallet token
func NewToken() (string, error) {
	return random(TokenBytes)
}

func random(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Equal compares two credentials in constant time
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Fingerprint derives a short stable digest of a credential, safe to log
// and to persist in place of the raw value.
func Fingerprint(tok string) string {
	sum := sha3.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:8])
}
