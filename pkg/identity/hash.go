package identity

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// HashSize is the size of a CryptoHash.
const HashSize = sha256.Size

// ErrInvalidHash is returned when a hash cannot be decoded.
var ErrInvalidHash = errors.New("invalid hash")

// CryptoHash is a sha256 digest.
type CryptoHash [HashSize]byte

// Hash returns the sha256 digest of data.
func Hash(data []byte) CryptoHash {
	return CryptoHash(sha256.Sum256(data))
}

// String returns the base58 form of the hash.
func (h CryptoHash) String() string {
	return base58.Encode(h[:])
}

// IsZero reports whether the hash is all zero bytes.
func (h CryptoHash) IsZero() bool {
	return h == CryptoHash{}
}

// ParseCryptoHash decodes a base58 hash.
func ParseCryptoHash(s string) (CryptoHash, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return CryptoHash{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return CryptoHashFromBytes(data)
}

// CryptoHashFromBytes copies a raw 32 byte digest.
func CryptoHashFromBytes(b []byte) (CryptoHash, error) {
	var h CryptoHash
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: length %d, want %d", ErrInvalidHash, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// MustParseCryptoHash is ParseCryptoHash for compile-time constants.
func MustParseCryptoHash(s string) CryptoHash {
	h, err := ParseCryptoHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
