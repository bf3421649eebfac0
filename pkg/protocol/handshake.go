package protocol

import (
	"errors"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

// GenesisID identifies the network a peer belongs to.
type GenesisID struct {
	ChainID string
	Hash    identity.CryptoHash
}

// String returns "chain_id/hash".
func (g GenesisID) String() string {
	return g.ChainID + "/" + g.Hash.String()
}

// PeerChainInfo is the chain context a peer declares in its handshake.
type PeerChainInfo struct {
	GenesisID     GenesisID
	Height        uint64
	TrackedShards []uint64 // nil when empty
	Archival      bool
}

// Handshake opens a connection. SenderListenPort is nil when the sender does
// not accept inbound connections.
type Handshake struct {
	ProtocolVersion        uint32
	OldestSupportedVersion uint32
	SenderPeerID           identity.PeerID
	TargetPeerID           identity.PeerID
	SenderListenPort       *uint16
	SenderChainInfo        PeerChainInfo
	PartialEdgeInfo        PartialEdgeInfo
}

// toWire maps the handshake to its schema form. A listen port of 0 is
// written as absent because the schema uses 0 for "no port".
func (h *Handshake) toWire() (*wire.Handshake, error) {
	edge, err := h.PartialEdgeInfo.Encode()
	if err != nil {
		return nil, err
	}
	var port uint32
	if h.SenderListenPort != nil {
		port = uint32(*h.SenderListenPort)
	}
	var shards []uint64
	if len(h.SenderChainInfo.TrackedShards) > 0 {
		shards = append(shards, h.SenderChainInfo.TrackedShards...)
	}
	return &wire.Handshake{
		ProtocolVersion:        h.ProtocolVersion,
		OldestSupportedVersion: h.OldestSupportedVersion,
		SenderPeerID:           h.SenderPeerID.Bytes(),
		TargetPeerID:           h.TargetPeerID.Bytes(),
		SenderListenPort:       port,
		SenderChainInfo: &wire.PeerChainInfo{
			GenesisID: &wire.GenesisID{
				ChainID: h.SenderChainInfo.GenesisID.ChainID,
				Hash:    h.SenderChainInfo.GenesisID.Hash[:],
			},
			Height:        h.SenderChainInfo.Height,
			TrackedShards: shards,
			Archival:      h.SenderChainInfo.Archival,
		},
		PartialEdgeInfo: edge,
	}, nil
}

func handshakeFromWire(w *wire.Handshake) (*Handshake, error) {
	if w.SenderPeerID == nil {
		return nil, decodeErr("handshake", errors.New("missing sender_peer_id"))
	}
	if w.TargetPeerID == nil {
		return nil, decodeErr("handshake", errors.New("missing target_peer_id"))
	}
	if w.SenderChainInfo == nil || w.SenderChainInfo.GenesisID == nil {
		return nil, decodeErr("handshake", errors.New("missing sender_chain_info"))
	}
	if w.PartialEdgeInfo == nil {
		return nil, decodeErr("handshake", errors.New("missing partial_edge_info"))
	}

	sender, err := identity.PeerIDFromBytes(w.SenderPeerID)
	if err != nil {
		return nil, decodeErr("sender_peer_id", err)
	}
	target, err := identity.PeerIDFromBytes(w.TargetPeerID)
	if err != nil {
		return nil, decodeErr("target_peer_id", err)
	}
	hash, err := identity.CryptoHashFromBytes(w.SenderChainInfo.GenesisID.Hash)
	if err != nil {
		return nil, decodeErr("genesis hash", err)
	}
	edge, err := DecodePartialEdgeInfo(w.PartialEdgeInfo)
	if err != nil {
		return nil, decodeErr("partial_edge_info", err)
	}

	h := &Handshake{
		ProtocolVersion:        w.ProtocolVersion,
		OldestSupportedVersion: w.OldestSupportedVersion,
		SenderPeerID:           sender,
		TargetPeerID:           target,
		SenderChainInfo: PeerChainInfo{
			GenesisID: GenesisID{
				ChainID: w.SenderChainInfo.GenesisID.ChainID,
				Hash:    hash,
			},
			Height:   w.SenderChainInfo.Height,
			Archival: w.SenderChainInfo.Archival,
		},
		PartialEdgeInfo: edge,
	}
	if len(w.SenderChainInfo.TrackedShards) > 0 {
		h.SenderChainInfo.TrackedShards = append([]uint64(nil), w.SenderChainInfo.TrackedShards...)
	}
	if w.SenderListenPort != 0 {
		if w.SenderListenPort > 0xFFFF {
			return nil, decodeErr("sender_listen_port", errors.New("out of range"))
		}
		port := uint16(w.SenderListenPort)
		h.SenderListenPort = &port
	}
	return h, nil
}
