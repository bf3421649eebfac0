// Package identity provides node key material: ed25519 keys, signatures,
// peer identifiers and crypto hashes in their textual and binary forms.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ed25519"
)

// SecretKeySize is the size of an expanded ed25519 secret key.
const SecretKeySize = ed25519.PrivateKeySize

// ErrInvalidSecretKey is returned when a secret key cannot be decoded.
var ErrInvalidSecretKey = errors.New("invalid secret key")

// Identity is a node key pair.
type Identity struct {
	private ed25519.PrivateKey
	public  PublicKey
}

// Generate creates a new identity from r. A nil reader uses crypto/rand.
func Generate(r io.Reader) (*Identity, error) {
	if r == nil {
		r = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return fromPrivate(priv), nil
}

// FromSeed derives an identity from a 32 byte seed.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed length %d, want %d", ErrInvalidSecretKey, len(seed), ed25519.SeedSize)
	}
	return fromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

// ParseSecretKey parses "ed25519:<base58>" holding the 64 byte expanded key.
func ParseSecretKey(s string) (*Identity, error) {
	keyType, data, err := splitTyped(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	if keyType != KeyTypeED25519 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, keyType)
	}
	if len(data) != SecretKeySize {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrInvalidSecretKey, len(data), SecretKeySize)
	}
	id := fromPrivate(ed25519.PrivateKey(data))
	// The public half is embedded in the expanded key and must match the seed.
	derived := ed25519.NewKeyFromSeed(data[:ed25519.SeedSize])
	if string(derived) != string(data) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidSecretKey)
	}
	return id, nil
}

func fromPrivate(priv ed25519.PrivateKey) *Identity {
	id := &Identity{private: priv}
	id.public.Type = KeyTypeED25519
	copy(id.public.Data[:], priv.Public().(ed25519.PublicKey))
	return id
}

// PublicKey returns the public half of the key pair.
func (id *Identity) PublicKey() PublicKey {
	return id.public
}

// PeerID returns the peer identifier derived from the public key.
func (id *Identity) PeerID() PeerID {
	return PeerID{PublicKey: id.public}
}

// Sign signs msg with the secret key.
func (id *Identity) Sign(msg []byte) Signature {
	var sig Signature
	sig.Type = KeyTypeED25519
	copy(sig.Data[:], ed25519.Sign(id.private, msg))
	return sig
}

// SecretKey returns the secret key as "ed25519:<base58>".
func (id *Identity) SecretKey() string {
	return KeyTypeED25519.String() + ":" + base58.Encode(id.private)
}

// String returns the peer ID, never the secret.
func (id *Identity) String() string {
	return id.public.String()
}
