package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Handshake message and its nested messages.
const (
	hsProtocolVersion        protowire.Number = 1
	hsOldestSupportedVersion protowire.Number = 2
	hsSenderPeerID           protowire.Number = 3
	hsTargetPeerID           protowire.Number = 4
	hsSenderListenPort       protowire.Number = 5
	hsSenderChainInfo        protowire.Number = 6
	hsPartialEdgeInfo        protowire.Number = 7

	blobBorsh protowire.Number = 1 // PublicKey.borsh, PartialEdgeInfo.borsh
	hashHash  protowire.Number = 1 // CryptoHash.hash

	genesisChainID protowire.Number = 1
	genesisHash    protowire.Number = 2

	chainGenesisID     protowire.Number = 1
	chainHeight        protowire.Number = 2
	chainTrackedShards protowire.Number = 3
	chainArchival      protowire.Number = 4
)

// Handshake is the schema form of a handshake. Key and edge fields hold the
// borsh bytes carried inside their wrapper messages.
type Handshake struct {
	ProtocolVersion        uint32
	OldestSupportedVersion uint32
	SenderPeerID           []byte
	TargetPeerID           []byte
	SenderListenPort       uint32 // 0 = absent
	SenderChainInfo        *PeerChainInfo
	PartialEdgeInfo        []byte
}

// PeerChainInfo is the schema form of the sender's chain context.
type PeerChainInfo struct {
	GenesisID     *GenesisID
	Height        uint64
	TrackedShards []uint64
	Archival      bool
}

// GenesisID is the schema form of a genesis identity.
type GenesisID struct {
	ChainID string
	Hash    []byte
}

// Encode returns the protobuf bytes of the handshake.
func (h *Handshake) Encode() []byte {
	var b []byte
	b = appendVarintField(b, hsProtocolVersion, uint64(h.ProtocolVersion))
	b = appendVarintField(b, hsOldestSupportedVersion, uint64(h.OldestSupportedVersion))
	if h.SenderPeerID != nil {
		b = appendMessageField(b, hsSenderPeerID, encodeBlob(blobBorsh, h.SenderPeerID))
	}
	if h.TargetPeerID != nil {
		b = appendMessageField(b, hsTargetPeerID, encodeBlob(blobBorsh, h.TargetPeerID))
	}
	b = appendVarintField(b, hsSenderListenPort, uint64(h.SenderListenPort))
	if h.SenderChainInfo != nil {
		b = appendMessageField(b, hsSenderChainInfo, h.SenderChainInfo.Encode())
	}
	if h.PartialEdgeInfo != nil {
		b = appendMessageField(b, hsPartialEdgeInfo, encodeBlob(blobBorsh, h.PartialEdgeInfo))
	}
	return b
}

// DecodeHandshake parses the protobuf bytes of a handshake.
// Unknown fields, including owned_account, are skipped.
func DecodeHandshake(data []byte) (*Handshake, error) {
	h := &Handshake{}
	err := parseFields(data, func(f protoField) error {
		var err error
		switch f.Num {
		case hsProtocolVersion:
			h.ProtocolVersion, err = uint32Field(f)
		case hsOldestSupportedVersion:
			h.OldestSupportedVersion, err = uint32Field(f)
		case hsSenderPeerID:
			h.SenderPeerID, err = decodeBlob(f, blobBorsh)
		case hsTargetPeerID:
			h.TargetPeerID, err = decodeBlob(f, blobBorsh)
		case hsSenderListenPort:
			h.SenderListenPort, err = uint32Field(f)
		case hsSenderChainInfo:
			if err = f.expect(protowire.BytesType); err == nil {
				h.SenderChainInfo, err = DecodePeerChainInfo(f.Bytes)
			}
		case hsPartialEdgeInfo:
			h.PartialEdgeInfo, err = decodeBlob(f, blobBorsh)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Encode returns the protobuf bytes of the chain info.
// Tracked shards are written packed.
func (c *PeerChainInfo) Encode() []byte {
	var b []byte
	if c.GenesisID != nil {
		b = appendMessageField(b, chainGenesisID, c.GenesisID.Encode())
	}
	b = appendVarintField(b, chainHeight, c.Height)
	if len(c.TrackedShards) > 0 {
		var packed []byte
		for _, s := range c.TrackedShards {
			packed = protowire.AppendVarint(packed, s)
		}
		b = appendMessageField(b, chainTrackedShards, packed)
	}
	b = appendBoolField(b, chainArchival, c.Archival)
	return b
}

// DecodePeerChainInfo parses chain info. Tracked shards are accepted packed
// or unpacked.
func DecodePeerChainInfo(data []byte) (*PeerChainInfo, error) {
	c := &PeerChainInfo{}
	err := parseFields(data, func(f protoField) error {
		switch f.Num {
		case chainGenesisID:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			g, err := DecodeGenesisID(f.Bytes)
			if err != nil {
				return err
			}
			c.GenesisID = g
		case chainHeight:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			c.Height = f.Varint
		case chainTrackedShards:
			switch f.Type {
			case protowire.VarintType:
				c.TrackedShards = append(c.TrackedShards, f.Varint)
			case protowire.BytesType:
				rest := f.Bytes
				for len(rest) > 0 {
					v, n := protowire.ConsumeVarint(rest)
					if n < 0 {
						return malformedField(f.Num, n)
					}
					c.TrackedShards = append(c.TrackedShards, v)
					rest = rest[n:]
				}
			default:
				return f.expect(protowire.BytesType)
			}
		case chainArchival:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			c.Archival = protowire.DecodeBool(f.Varint)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Encode returns the protobuf bytes of the genesis id.
func (g *GenesisID) Encode() []byte {
	var b []byte
	b = appendStringField(b, genesisChainID, g.ChainID)
	if g.Hash != nil {
		b = appendMessageField(b, genesisHash, encodeBlob(hashHash, g.Hash))
	}
	return b
}

// DecodeGenesisID parses a genesis id.
func DecodeGenesisID(data []byte) (*GenesisID, error) {
	g := &GenesisID{}
	err := parseFields(data, func(f protoField) error {
		switch f.Num {
		case genesisChainID:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			g.ChainID = string(f.Bytes)
		case genesisHash:
			h, err := decodeBlob(f, hashHash)
			if err != nil {
				return err
			}
			g.Hash = h
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// encodeBlob wraps raw bytes in a single-field message.
func encodeBlob(num protowire.Number, v []byte) []byte {
	return appendBytesField(nil, num, v)
}

// decodeBlob unwraps a single-field message. A present but empty wrapper
// decodes to an empty, non-nil slice.
func decodeBlob(f protoField, num protowire.Number) ([]byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	out := []byte{}
	err := parseFields(f.Bytes, func(inner protoField) error {
		if inner.Num != num {
			return nil
		}
		if err := inner.expect(protowire.BytesType); err != nil {
			return err
		}
		out = cloneBytes(inner.Bytes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
