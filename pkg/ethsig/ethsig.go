// Package ethsig isolates Ethereum signature recovery and hot-wallet signing
// behind small capability interfaces so the rest of the core stays
// cryptography-library-agnostic.
package ethsig

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignatureLength  = errors.New("signature must be 65 bytes")
)

// Verifier recovers signer addresses from signatures
type Verifier interface {
	// RecoverPersonal recovers the signer of an EIP-191 personal_sign message
	RecoverPersonal(message string, signature string) (string, error)
	// RecoverDigest recovers the signer of a raw 32-byte digest
	RecoverDigest(digest [32]byte, signature string) (string, error)
}

// Signer signs 32-byte digests with an operator-held key
type Signer interface {
	SignDigest(digest [32]byte) (string, error)
	Address() string
}

// EthVerifier implements Verifier with secp256k1 recovery
type EthVerifier struct{}

func NewVerifier() *EthVerifier {
	return &EthVerifier{}
}

func (v *EthVerifier) RecoverPersonal(message string, signature string) (string, error) {
	digest := PersonalDigest(message)
	return v.RecoverDigest(digest, signature)
}

func (v *EthVerifier) RecoverDigest(digest [32]byte, signature string) (string, error) {
	sig, err := DecodeSignature(signature)
	if err != nil {
		return "", err
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// KeySigner implements Signer over a hex-encoded secp256k1 private key
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	if len(privateKeyHex) >= 2 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hot wallet key: %w", err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *KeySigner) SignDigest(digest [32]byte) (string, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return "", err
	}
	// wire format uses v in {27,28}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func (s *KeySigner) Address() string {
	return s.address.Hex()
}

// Key exposes the raw key for transaction signing
func (s *KeySigner) Key() *ecdsa.PrivateKey {
	return s.key
}

// DecodeSignature decodes a 65-byte hex signature and normalizes v to {0,1}
func DecodeSignature(signature string) ([]byte, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, ErrSignatureLength
	}
	out := make([]byte, len(sig))
	copy(out, sig)
	if out[64] >= 27 {
		out[64] -= 27
	}
	return out, nil
}

// PersonalDigest computes the EIP-191 digest of a personal_sign message
func PersonalDigest(message string) [32]byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte(prefixed)))
	return digest
}

var (
	finalizeTypeHash = crypto.Keccak256([]byte(
		"Finalize(uint256 listingID,uint256 offerID,bytes32 ipfsBytes,uint256 payout,uint256 fee)"))
	acceptTypeHash = crypto.Keccak256([]byte(
		"Accept(uint256 listingID,uint256 offerID,bytes32 ipfsBytes,uint256 behalfFee)"))
)

// FinalizeDigest computes the typed digest a seller signs to authorize a
// verified on-behalf finalize.
func FinalizeDigest(listingID, offerID *big.Int, ipfsBytes [32]byte, payout, fee *big.Int) [32]byte {
	var digest [32]byte
	copy(digest[:], crypto.Keccak256(
		finalizeTypeHash,
		padUint(listingID),
		padUint(offerID),
		ipfsBytes[:],
		padUint(payout),
		padUint(fee),
	))
	return digest
}

// AcceptDigest computes the typed digest a seller signs to authorize an
// on-behalf accept.
func AcceptDigest(listingID, offerID *big.Int, ipfsBytes [32]byte, behalfFee *big.Int) [32]byte {
	var digest [32]byte
	copy(digest[:], crypto.Keccak256(
		acceptTypeHash,
		padUint(listingID),
		padUint(offerID),
		ipfsBytes[:],
		padUint(behalfFee),
	))
	return digest
}

func padUint(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}
