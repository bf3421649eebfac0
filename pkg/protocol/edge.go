package protocol

import (
	"fmt"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

// PartialEdgeInfo is one side's proof that it agreed to an edge with a
// given nonce.
type PartialEdgeInfo struct {
	Nonce     uint64
	Signature identity.Signature
}

// SortPeers returns the two peers with the smaller key bytes first.
func SortPeers(a, b identity.PeerID) (identity.PeerID, identity.PeerID) {
	if a.Compare(b.PublicKey) <= 0 {
		return a, b
	}
	return b, a
}

// EdgeHash returns sha256(borsh(peer0, peer1, nonce)) for the ordered pair.
// The result does not depend on the argument order.
func EdgeHash(a, b identity.PeerID, nonce uint64) identity.CryptoHash {
	peer0, peer1 := SortPeers(a, b)
	data, err := wire.Marshal(wire.BorshEdgeKey{
		Peer0: borshKey(peer0.PublicKey),
		Peer1: borshKey(peer1.PublicKey),
		Nonce: nonce,
	})
	if err != nil {
		// Fixed-size layout of plain integers and arrays.
		panic(fmt.Sprintf("encode edge key: %v", err))
	}
	return identity.Hash(data)
}

// NewPartialEdgeInfo signs the edge between the local identity and peer.
func NewPartialEdgeInfo(local *identity.Identity, peer identity.PeerID, nonce uint64) PartialEdgeInfo {
	hash := EdgeHash(local.PeerID(), peer, nonce)
	return PartialEdgeInfo{
		Nonce:     nonce,
		Signature: local.Sign(hash[:]),
	}
}

// Verify reports whether signer produced this proof for the edge with other.
func (p PartialEdgeInfo) Verify(signer, other identity.PeerID) bool {
	hash := EdgeHash(signer, other, p.Nonce)
	return signer.Verify(hash[:], p.Signature)
}

// Encode returns the borsh bytes: nonce u64 LE followed by the signature.
func (p PartialEdgeInfo) Encode() ([]byte, error) {
	return wire.Marshal(wire.BorshPartialEdgeInfo{
		Nonce:     p.Nonce,
		Signature: borshSignature(p.Signature),
	})
}

// DecodePartialEdgeInfo parses the borsh bytes of an edge proof.
func DecodePartialEdgeInfo(data []byte) (PartialEdgeInfo, error) {
	var b wire.BorshPartialEdgeInfo
	if err := wire.Unmarshal(data, &b); err != nil {
		return PartialEdgeInfo{}, err
	}
	sig, err := signatureFromBorsh(b.Signature)
	if err != nil {
		return PartialEdgeInfo{}, err
	}
	return PartialEdgeInfo{Nonce: b.Nonce, Signature: sig}, nil
}
