// Package node builds and checks handshakes and routed messages for one
// local identity.
//
// A Node holds no per-connection state. It is safe for concurrent use by
// any number of connection handlers.
package node

import (
	"errors"
	"time"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/protocol"
	"github.com/near-handshake/handshake-go/pkg/version"
)

// Policy is the local side of a handshake: what we announce and what we
// accept from peers.
type Policy struct {
	// ProtocolVersion is announced in outbound handshakes.
	ProtocolVersion uint32

	// OldestSupportedVersion is announced and compared with the peer's.
	OldestSupportedVersion uint32

	// MinAcceptedVersion is the lowest peer protocol version accepted.
	// Zero means ProtocolVersion.
	MinAcceptedVersion uint32

	// OldestPolicy selects the direction of the oldest-version check.
	OldestPolicy version.OldestPolicy

	// ListenPort is announced when set.
	ListenPort *uint16

	// ChainInfo is announced, and its genesis id must match the peer's.
	ChainInfo protocol.PeerChainInfo
}

// DefaultPolicy returns the policy for the given network with the default
// protocol versions.
func DefaultPolicy(genesis protocol.GenesisID) Policy {
	return Policy{
		ProtocolVersion:        version.ProtocolVersion,
		OldestSupportedVersion: version.OldestSupportedVersion,
		OldestPolicy:           version.RejectOlder,
		ChainInfo: protocol.PeerChainInfo{
			GenesisID: genesis,
		},
	}
}

func (p Policy) minAccepted() uint32 {
	if p.MinAcceptedVersion == 0 {
		return p.ProtocolVersion
	}
	return p.MinAcceptedVersion
}

// Config configures a Node.
type Config struct {
	// Identity signs handshakes and routed messages. Required.
	Identity *identity.Identity

	// Policy is the version and chain policy.
	Policy Policy

	// Clock stamps routed messages (default: time.Now).
	Clock func() time.Time
}

// Node is a local identity with its handshake policy.
type Node struct {
	id     *identity.Identity
	policy Policy
	clock  func() time.Time
}

// New creates a Node.
func New(config Config) (*Node, error) {
	if config.Identity == nil {
		return nil, errors.New("node: identity is required")
	}
	if err := (version.Range{
		Oldest:  config.Policy.OldestSupportedVersion,
		Current: config.Policy.ProtocolVersion,
	}).Validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Node{
		id:     config.Identity,
		policy: config.Policy,
		clock:  config.Clock,
	}, nil
}

// PeerID returns the local peer id.
func (n *Node) PeerID() identity.PeerID {
	return n.id.PeerID()
}

// Policy returns the local policy.
func (n *Node) Policy() Policy {
	return n.policy
}
