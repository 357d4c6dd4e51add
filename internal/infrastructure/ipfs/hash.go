package ipfs

import (
	"bytes"
	"fmt"
	"math/big"
)

// CIDv0 hashes are base58(0x12 0x20 || sha256 digest). Contracts store only
// the 32-byte digest, so both directions of the conversion are needed.

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// HashToBytes32 extracts the 32-byte digest from a base58 CIDv0 hash
func HashToBytes32(hash string) ([32]byte, error) {
	var out [32]byte
	decoded, err := base58Decode(hash)
	if err != nil {
		return out, err
	}
	if len(decoded) != 34 || decoded[0] != 0x12 || decoded[1] != 0x20 {
		return out, fmt.Errorf("not a CIDv0 sha256 hash: %q", hash)
	}
	copy(out[:], decoded[2:])
	return out, nil
}

// Bytes32ToHash rebuilds the base58 CIDv0 hash from a stored digest
func Bytes32ToHash(digest [32]byte) string {
	prefixed := append([]byte{0x12, 0x20}, digest[:]...)
	return base58Encode(prefixed)
}

// HashCodec is the value form of the conversion pair, for injection
type HashCodec struct{}

func (HashCodec) HashToBytes32(hash string) ([32]byte, error) { return HashToBytes32(hash) }
func (HashCodec) Bytes32ToHash(digest [32]byte) string        { return Bytes32ToHash(digest) }

func base58Encode(input []byte) string {
	x := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	mod := new(big.Int)

	var encoded []byte
	for x.Sign() > 0 {
		x.DivMod(x, base, mod)
		encoded = append(encoded, base58Alphabet[mod.Int64()])
	}
	for _, b := range input {
		if b != 0 {
			break
		}
		encoded = append(encoded, base58Alphabet[0])
	}
	for i, j := 0, len(encoded)-1; i < j; i, j = i+1, j-1 {
		encoded[i], encoded[j] = encoded[j], encoded[i]
	}
	return string(encoded)
}

func base58Decode(input string) ([]byte, error) {
	x := big.NewInt(0)
	base := big.NewInt(58)
	for _, r := range input {
		idx := bytes.IndexByte([]byte(base58Alphabet), byte(r))
		if idx < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", r)
		}
		x.Mul(x, base)
		x.Add(x, big.NewInt(int64(idx)))
	}

	decoded := x.Bytes()
	for i := 0; i < len(input) && input[i] == base58Alphabet[0]; i++ {
		decoded = append([]byte{0}, decoded...)
	}
	return decoded, nil
}
