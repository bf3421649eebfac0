package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageKind selects the populated variant of a PeerMessage.
type MessageKind uint8

// Message kinds in the PeerMessage oneof.
const (
	KindUnknown MessageKind = iota
	KindTier1Handshake
	KindTier2Handshake
	KindHandshakeFailure
	KindLastEdge
	KindSyncRoutingTable
	KindDistanceVector
	KindUpdateNonceRequest
	KindUpdateNonceResponse
	KindSyncAccountsData
	KindPeersRequest
	KindPeersResponse
	KindBlockHeadersRequest
	KindBlockHeaders
	KindBlockRequest
	KindBlock
	KindTransaction
	KindRouted
	KindDisconnect
	KindChallenge
)

// PeerMessage fields outside the oneof.
const (
	fieldTraceContext protowire.Number = 26
)

var kindFields = map[MessageKind]protowire.Number{
	KindTier1Handshake:      27,
	KindTier2Handshake:      4,
	KindHandshakeFailure:    5,
	KindLastEdge:            6,
	KindSyncRoutingTable:    7,
	KindDistanceVector:      28,
	KindUpdateNonceRequest:  8,
	KindUpdateNonceResponse: 9,
	KindSyncAccountsData:    25,
	KindPeersRequest:        10,
	KindPeersResponse:       11,
	KindBlockHeadersRequest: 12,
	KindBlockHeaders:        13,
	KindBlockRequest:        14,
	KindBlock:               15,
	KindTransaction:         16,
	KindRouted:              17,
	KindDisconnect:          18,
	KindChallenge:           19,
}

var fieldKinds = func() map[protowire.Number]MessageKind {
	m := make(map[protowire.Number]MessageKind, len(kindFields))
	for k, f := range kindFields {
		m[f] = k
	}
	return m
}()

var kindNames = map[MessageKind]string{
	KindUnknown:             "Unknown",
	KindTier1Handshake:      "Tier1Handshake",
	KindTier2Handshake:      "Tier2Handshake",
	KindHandshakeFailure:    "HandshakeFailure",
	KindLastEdge:            "LastEdge",
	KindSyncRoutingTable:    "SyncRoutingTable",
	KindDistanceVector:      "DistanceVector",
	KindUpdateNonceRequest:  "UpdateNonceRequest",
	KindUpdateNonceResponse: "UpdateNonceResponse",
	KindSyncAccountsData:    "SyncAccountsData",
	KindPeersRequest:        "PeersRequest",
	KindPeersResponse:       "PeersResponse",
	KindBlockHeadersRequest: "BlockHeadersRequest",
	KindBlockHeaders:        "BlockHeaders",
	KindBlockRequest:        "BlockRequest",
	KindBlock:               "Block",
	KindTransaction:         "Transaction",
	KindRouted:              "Routed",
	KindDisconnect:          "Disconnect",
	KindChallenge:           "Challenge",
}

// String returns the variant name.
func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MessageKind(%d)", uint8(k))
}

// FieldNumber returns the oneof field number of the kind.
func (k MessageKind) FieldNumber() (protowire.Number, bool) {
	n, ok := kindFields[k]
	return n, ok
}

// IsHandshake reports whether the kind carries a Handshake payload.
func (k MessageKind) IsHandshake() bool {
	return k == KindTier1Handshake || k == KindTier2Handshake
}

// ParseMessageKind parses a variant name as returned by String.
func ParseMessageKind(s string) (MessageKind, error) {
	for k, name := range kindNames {
		if name == s && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown message kind %q", s)
}

// AllKinds returns every known kind in declaration order.
func AllKinds() []MessageKind {
	out := make([]MessageKind, 0, len(kindFields))
	for k := KindTier1Handshake; k <= KindChallenge; k++ {
		out = append(out, k)
	}
	return out
}
