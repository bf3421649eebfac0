package node

import (
	"errors"
	"fmt"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/protocol"
)

// RejectReason says why an inbound handshake was rejected.
type RejectReason string

// Reject reasons, in the order they are checked.
const (
	ReasonNone                  RejectReason = ""
	ReasonVersionTooOld         RejectReason = "version-too-old"
	ReasonOldestVersionMismatch RejectReason = "oldest-version-mismatch"
	ReasonTargetMismatch        RejectReason = "target-mismatch"
	ReasonGenesisMismatch       RejectReason = "genesis-mismatch"
	ReasonBadSignature          RejectReason = "bad-signature"
)

// ErrHandshakeRejected is wrapped by every RejectedError.
var ErrHandshakeRejected = errors.New("handshake rejected")

// RejectedError carries the reason and a diagnostic detail.
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("handshake rejected: %s", e.Reason)
	}
	return fmt.Sprintf("handshake rejected: %s: %s", e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error {
	return ErrHandshakeRejected
}

// CreateHandshake builds an outbound handshake to target with an edge proof
// for nonce.
func (n *Node) CreateHandshake(target identity.PeerID, nonce uint64) *protocol.Handshake {
	h := &protocol.Handshake{
		ProtocolVersion:        n.policy.ProtocolVersion,
		OldestSupportedVersion: n.policy.OldestSupportedVersion,
		SenderPeerID:           n.id.PeerID(),
		TargetPeerID:           target,
		SenderChainInfo:        n.policy.ChainInfo,
		PartialEdgeInfo:        protocol.NewPartialEdgeInfo(n.id, target, nonce),
	}
	if n.policy.ListenPort != nil {
		port := *n.policy.ListenPort
		h.SenderListenPort = &port
	}
	if shards := n.policy.ChainInfo.TrackedShards; shards != nil {
		h.SenderChainInfo.TrackedShards = append([]uint64(nil), shards...)
	}
	return h
}

// VerifyHandshake checks an inbound handshake against the local policy.
// The first failing check decides the reason.
func (n *Node) VerifyHandshake(h *protocol.Handshake) (bool, RejectReason) {
	err := n.CheckHandshake(h)
	if err == nil {
		return true, ReasonNone
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return false, rejected.Reason
	}
	return false, ReasonBadSignature
}

// CheckHandshake is VerifyHandshake returning a *RejectedError.
func (n *Node) CheckHandshake(h *protocol.Handshake) error {
	if h.ProtocolVersion < n.policy.minAccepted() {
		return &RejectedError{
			Reason: ReasonVersionTooOld,
			Detail: fmt.Sprintf("peer version %d, minimum %d", h.ProtocolVersion, n.policy.minAccepted()),
		}
	}
	if !n.policy.OldestPolicy.Accepts(n.policy.OldestSupportedVersion, h.OldestSupportedVersion) {
		return &RejectedError{
			Reason: ReasonOldestVersionMismatch,
			Detail: fmt.Sprintf("peer oldest %d, local oldest %d (%s)",
				h.OldestSupportedVersion, n.policy.OldestSupportedVersion, n.policy.OldestPolicy),
		}
	}
	if !h.TargetPeerID.Equal(n.id.PeerID()) {
		return &RejectedError{
			Reason: ReasonTargetMismatch,
			Detail: fmt.Sprintf("addressed to %s", h.TargetPeerID),
		}
	}
	if h.SenderChainInfo.GenesisID != n.policy.ChainInfo.GenesisID {
		return &RejectedError{
			Reason: ReasonGenesisMismatch,
			Detail: fmt.Sprintf("peer genesis %s, local %s", h.SenderChainInfo.GenesisID, n.policy.ChainInfo.GenesisID),
		}
	}
	if !h.PartialEdgeInfo.Verify(h.SenderPeerID, h.TargetPeerID) {
		return &RejectedError{
			Reason: ReasonBadSignature,
			Detail: fmt.Sprintf("edge nonce %d", h.PartialEdgeInfo.Nonce),
		}
	}
	return nil
}
