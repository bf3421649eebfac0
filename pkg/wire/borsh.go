package wire

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/near/borsh-go"
)

// ErrMalformed is returned when bytes do not decode under the expected layout.
var ErrMalformed = errors.New("malformed message")

// Borsh layouts of the fixed-size structures that appear inside signed blobs.
// Field order is the serialization order.

// BorshPublicKey is a key type byte followed by a 32 byte ed25519 key.
type BorshPublicKey struct {
	KeyType uint8
	Data    [32]byte
}

// BorshSignature is a key type byte followed by a 64 byte ed25519 signature.
type BorshSignature struct {
	KeyType uint8
	Data    [64]byte
}

// BorshPartialEdgeInfo is the edge proof carried in a handshake.
type BorshPartialEdgeInfo struct {
	Nonce     uint64
	Signature BorshSignature
}

// BorshEdgeKey is the tuple hashed to produce an edge hash.
// Peer0 must sort before Peer1.
type BorshEdgeKey struct {
	Peer0 BorshPublicKey
	Peer1 BorshPublicKey
	Nonce uint64
}

// BorshPingPong is the layout shared by Ping and Pong routed bodies.
type BorshPingPong struct {
	Nonce  uint64
	Source BorshPublicKey
}

// Marshal borsh-encodes v. Pass values, not pointers: a pointer encodes as an option.
func Marshal(v any) ([]byte, error) {
	b, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("borsh encode %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal decodes data into v, which must point to one of the fixed-size
// layouts above. Input whose length differs from the layout size is rejected.
func Unmarshal(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("borsh decode: need non-nil pointer, got %T", v)
	}

	size, err := fixedSize(rv.Elem().Interface())
	if err != nil {
		return err
	}
	if len(data) != size {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrMalformed, rv.Elem().Type().Name(), len(data), size)
	}

	if err := borsh.Deserialize(v, data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Re-encoding must reproduce the input exactly.
	again, err := Marshal(rv.Elem().Interface())
	if err != nil {
		return err
	}
	if !bytes.Equal(again, data) {
		return fmt.Errorf("%w: non-canonical %s", ErrMalformed, rv.Elem().Type().Name())
	}
	return nil
}

func fixedSize(v any) (int, error) {
	b, err := Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
