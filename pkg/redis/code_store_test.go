package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"

func newTestStore(t *testing.T) (*CodeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	store, err := NewCodeStore(testEncryptionKey)
	require.NoError(t, err)
	return store, mr
}

type testPayload struct {
	Session string `json:"session"`
	Secret  string `json:"secret"`
}

func TestNewCodeStore_KeyValidation(t *testing.T) {
	_, err := NewCodeStore("zz")
	assert.Error(t, err)

	_, err = NewCodeStore("abcd")
	assert.Error(t, err, "short keys rejected")

	_, err = NewCodeStore(testEncryptionKey)
	assert.NoError(t, err)
}

func TestCodeStore_SavePeekConsume(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	in := testPayload{Session: "sess-1", Secret: "private"}
	require.NoError(t, store.Save(ctx, "abc123", in, time.Minute))

	var peeked testPayload
	require.NoError(t, store.Peek(ctx, "abc123", &peeked))
	assert.Equal(t, in, peeked)

	// peek does not consume
	var consumed testPayload
	require.NoError(t, store.Consume(ctx, "abc123", &consumed))
	assert.Equal(t, in, consumed)

	// consume does: the second redemption fails
	err := store.Consume(ctx, "abc123", &consumed)
	assert.ErrorIs(t, err, ErrCodeNotFound)
	err = store.Peek(ctx, "abc123", &peeked)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestCodeStore_ValuesEncryptedAtRest(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc123", testPayload{Secret: "very-private"}, time.Minute))

	raw, err := mr.Get("code:abc123")
	require.NoError(t, err)
	assert.NotContains(t, raw, "very-private")
	assert.False(t, strings.Contains(raw, "{"), "stored value must not be plaintext JSON")
}

func TestCodeStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc123", testPayload{}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var out testPayload
	err := store.Consume(ctx, "abc123", &out)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestCodeStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc123", testPayload{}, time.Minute))
	require.NoError(t, store.Delete(ctx, "abc123"))

	var out testPayload
	assert.ErrorIs(t, store.Peek(ctx, "abc123", &out), ErrCodeNotFound)
}

func TestCodeStore_WrongKeyCannotDecrypt(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "abc123", testPayload{Secret: "x"}, time.Minute))

	otherKey := strings.Repeat("ff", 32)
	other, err := NewCodeStore(otherKey)
	require.NoError(t, err)

	var out testPayload
	assert.Error(t, other.Peek(ctx, "abc123", &out))
}
