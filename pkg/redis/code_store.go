package redis

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// ErrCodeNotFound is returned when a code is unknown or already consumed.
// Expiry is delegated to the Redis TTL, so an expired code looks identical
// to an unknown one at this layer.
var ErrCodeNotFound = errors.New("code not found")

// CodeStore keeps short-lived pairing codes in Redis. Values are encrypted
// at rest because codes can carry private wallet data (privData, pending
// call payloads) while they wait to be redeemed.
type CodeStore struct {
	encryptionKey []byte
}

var (
	setCodeValue    = Set
	getDelCodeValue = GetDel
	getCodeValue    = Get
	delCodeValue    = Del
)

// NewCodeStore creates a new code store
func NewCodeStore(encryptionKeyHex string) (*CodeStore, error) {
	key, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, errors.New("invalid encryption key hex")
	}
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes (64 hex chars)")
	}
	return &CodeStore{encryptionKey: key}, nil
}

// Save stores an encrypted value under the code for the given TTL
func (s *CodeStore) Save(ctx context.Context, code string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}

	encrypted, err := s.encrypt(jsonData)
	if err != nil {
		return err
	}

	return setCodeValue(ctx, "code:"+code, encrypted, ttl)
}

// Peek reads a code without consuming it
func (s *CodeStore) Peek(ctx context.Context, code string, dest interface{}) error {
	encrypted, err := getCodeValue(ctx, "code:"+code)
	if err != nil {
		if IsNil(err) {
			return ErrCodeNotFound
		}
		return err
	}
	return s.decode(encrypted, dest)
}

// Consume reads a code and deletes it in the same round trip, so a code can
// be redeemed at most once even under concurrent redemption attempts.
func (s *CodeStore) Consume(ctx context.Context, code string, dest interface{}) error {
	encrypted, err := getDelCodeValue(ctx, "code:"+code)
	if err != nil {
		if IsNil(err) {
			return ErrCodeNotFound
		}
		return err
	}
	return s.decode(encrypted, dest)
}

// Delete discards a code
func (s *CodeStore) Delete(ctx context.Context, code string) error {
	return delCodeValue(ctx, "code:"+code)
}

func (s *CodeStore) decode(encrypted string, dest interface{}) error {
	plaintext, err := s.decrypt(encrypted)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, dest)
}

func (s *CodeStore) encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return hex.EncodeToString(ciphertext), nil
}

func (s *CodeStore) decrypt(ciphertextHex string) ([]byte, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
