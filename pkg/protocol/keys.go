package protocol

import (
	"fmt"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

func borshKey(pk identity.PublicKey) wire.BorshPublicKey {
	return wire.BorshPublicKey{KeyType: uint8(pk.Type), Data: pk.Data}
}

func keyFromBorsh(k wire.BorshPublicKey) (identity.PublicKey, error) {
	if identity.KeyType(k.KeyType) != identity.KeyTypeED25519 {
		return identity.PublicKey{}, fmt.Errorf("%w: %d", identity.ErrUnsupportedKeyType, k.KeyType)
	}
	return identity.PublicKey{Type: identity.KeyType(k.KeyType), Data: k.Data}, nil
}

func peerFromBorsh(k wire.BorshPublicKey) (identity.PeerID, error) {
	pk, err := keyFromBorsh(k)
	if err != nil {
		return identity.PeerID{}, err
	}
	return identity.NewPeerID(pk), nil
}

func borshSignature(sig identity.Signature) wire.BorshSignature {
	return wire.BorshSignature{KeyType: uint8(sig.Type), Data: sig.Data}
}

func signatureFromBorsh(s wire.BorshSignature) (identity.Signature, error) {
	if identity.KeyType(s.KeyType) != identity.KeyTypeED25519 {
		return identity.Signature{}, fmt.Errorf("%w: %d", identity.ErrUnsupportedKeyType, s.KeyType)
	}
	return identity.Signature{Type: identity.KeyType(s.KeyType), Data: s.Data}, nil
}
