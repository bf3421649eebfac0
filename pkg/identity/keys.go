package identity

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ed25519"
)

// KeyType identifies the signature scheme of a key or signature.
// The numeric value is the borsh enum discriminant used on the wire.
type KeyType uint8

const (
	// KeyTypeED25519 is the only key type this node generates and verifies.
	KeyTypeED25519 KeyType = 0
)

// Key and signature sizes for ed25519.
const (
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize

	// EncodedPublicKeySize is the borsh size of a PublicKey (type byte + key).
	EncodedPublicKeySize = 1 + PublicKeySize

	// EncodedSignatureSize is the borsh size of a Signature (type byte + signature).
	EncodedSignatureSize = 1 + SignatureSize
)

// Key errors.
var (
	ErrUnsupportedKeyType = errors.New("unsupported key type")
	ErrInvalidKey         = errors.New("invalid key")
	ErrInvalidSignature   = errors.New("invalid signature encoding")
)

// String returns the textual prefix of the key type.
func (k KeyType) String() string {
	switch k {
	case KeyTypeED25519:
		return "ed25519"
	default:
		return fmt.Sprintf("keytype(%d)", uint8(k))
	}
}

// ParseKeyType parses a textual key type prefix.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(s) {
	case "ed25519":
		return KeyTypeED25519, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, s)
	}
}

// PublicKey is a typed public key.
type PublicKey struct {
	Type KeyType
	Data [PublicKeySize]byte
}

// Bytes returns the borsh layout of the key: one type byte followed by the key.
func (p PublicKey) Bytes() []byte {
	out := make([]byte, 0, EncodedPublicKeySize)
	out = append(out, byte(p.Type))
	return append(out, p.Data[:]...)
}

// String returns the key as "ed25519:<base58>".
func (p PublicKey) String() string {
	return p.Type.String() + ":" + base58.Encode(p.Data[:])
}

// Compare orders keys by their borsh byte representation.
func (p PublicKey) Compare(other PublicKey) int {
	return bytes.Compare(p.Bytes(), other.Bytes())
}

// Verify reports whether sig is a valid signature of msg by this key.
func (p PublicKey) Verify(msg []byte, sig Signature) bool {
	if p.Type != KeyTypeED25519 || sig.Type != KeyTypeED25519 {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p.Data[:]), msg, sig.Data[:])
}

// PublicKeyFromBytes decodes the borsh layout produced by Bytes.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != EncodedPublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: length %d, want %d", ErrInvalidKey, len(b), EncodedPublicKeySize)
	}
	if KeyType(b[0]) != KeyTypeED25519 {
		return PublicKey{}, fmt.Errorf("%w: %d", ErrUnsupportedKeyType, b[0])
	}
	var pk PublicKey
	pk.Type = KeyType(b[0])
	copy(pk.Data[:], b[1:])
	return pk, nil
}

// ParsePublicKey parses "ed25519:<base58>". A missing prefix means ed25519.
func ParsePublicKey(s string) (PublicKey, error) {
	keyType, data, err := splitTyped(s)
	if err != nil {
		return PublicKey{}, err
	}
	if len(data) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: decoded %d bytes, want %d", ErrInvalidKey, len(data), PublicKeySize)
	}
	var pk PublicKey
	pk.Type = keyType
	copy(pk.Data[:], data)
	return pk, nil
}

// Signature is a typed signature.
type Signature struct {
	Type KeyType
	Data [SignatureSize]byte
}

// Bytes returns the borsh layout of the signature.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, EncodedSignatureSize)
	out = append(out, byte(s.Type))
	return append(out, s.Data[:]...)
}

// String returns the signature as "ed25519:<base58>".
func (s Signature) String() string {
	return s.Type.String() + ":" + base58.Encode(s.Data[:])
}

// SignatureFromBytes decodes the borsh layout produced by Bytes.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != EncodedSignatureSize {
		return Signature{}, fmt.Errorf("%w: length %d, want %d", ErrInvalidSignature, len(b), EncodedSignatureSize)
	}
	if KeyType(b[0]) != KeyTypeED25519 {
		return Signature{}, fmt.Errorf("%w: %d", ErrUnsupportedKeyType, b[0])
	}
	var sig Signature
	sig.Type = KeyType(b[0])
	copy(sig.Data[:], b[1:])
	return sig, nil
}

func splitTyped(s string) (KeyType, []byte, error) {
	keyType := KeyTypeED25519
	encoded := s
	if prefix, rest, ok := strings.Cut(s, ":"); ok {
		kt, err := ParseKeyType(prefix)
		if err != nil {
			return 0, nil, err
		}
		keyType = kt
		encoded = rest
	}
	data, err := base58.Decode(encoded)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return keyType, data, nil
}
