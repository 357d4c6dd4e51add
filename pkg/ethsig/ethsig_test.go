package ethsig

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewKeySigner(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return signer
}

func TestKeySigner_SignAndRecoverDigest(t *testing.T) {
	signer := newTestSigner(t)
	verifier := NewVerifier()

	digest := PersonalDigest("hello")
	sig, err := signer.SignDigest(digest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+65*2)

	recovered, err := verifier.RecoverDigest(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestRecoverPersonal(t *testing.T) {
	signer := newTestSigner(t)
	verifier := NewVerifier()

	msg := "link this wallet at 1700000000"
	sig, err := signer.SignDigest(PersonalDigest(msg))
	require.NoError(t, err)

	recovered, err := verifier.RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	// a different message must not recover to the signer
	recovered, err = verifier.RecoverPersonal(msg+"x", sig)
	if err == nil {
		assert.NotEqual(t, signer.Address(), recovered)
	}
}

func TestNewKeySigner_AcceptsHexPrefix(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	withPrefix, err := NewKeySigner(hexKey)
	require.NoError(t, err)
	withoutPrefix, err := NewKeySigner(hexKey[2:])
	require.NoError(t, err)
	assert.Equal(t, withPrefix.Address(), withoutPrefix.Address())

	_, err = NewKeySigner("not-a-key")
	assert.Error(t, err)
}

func TestDecodeSignature(t *testing.T) {
	_, err := DecodeSignature("0x1234")
	assert.ErrorIs(t, err, ErrSignatureLength)

	_, err = DecodeSignature("zzzz")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// v in {27,28} normalizes to {0,1}
	raw := make([]byte, 65)
	raw[64] = 28
	hexSig := "0x" + strings.Repeat("00", 64) + "1c"
	decoded, err := DecodeSignature(hexSig)
	require.NoError(t, err)
	assert.EqualValues(t, 1, decoded[64])
}

func TestTypedDigestsAreDistinctAndDeterministic(t *testing.T) {
	listing := big.NewInt(7)
	offer := big.NewInt(3)
	var ipfs [32]byte
	ipfs[0] = 0xab
	payout := big.NewInt(1000)
	fee := big.NewInt(50)

	d1 := FinalizeDigest(listing, offer, ipfs, payout, fee)
	d2 := FinalizeDigest(listing, offer, ipfs, payout, fee)
	assert.Equal(t, d1, d2)

	d3 := FinalizeDigest(listing, offer, ipfs, payout, big.NewInt(51))
	assert.NotEqual(t, d1, d3)

	a1 := AcceptDigest(listing, offer, ipfs, fee)
	assert.NotEqual(t, d1, a1, "finalize and accept digests must never collide")
}

func TestFinalizeRoundTripThroughSigner(t *testing.T) {
	signer := newTestSigner(t)
	verifier := NewVerifier()

	digest := FinalizeDigest(big.NewInt(1), big.NewInt(2), [32]byte{1}, big.NewInt(900), big.NewInt(100))
	sig, err := signer.SignDigest(digest)
	require.NoError(t, err)

	recovered, err := verifier.RecoverDigest(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}
