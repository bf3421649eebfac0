package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/near-handshake/handshake-go/pkg/identity"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a listening handshake node.
	ServiceType = "_nearhs._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// InstancePrefix starts every instance name.
	InstancePrefix = "nearhs-"
)

// TXT record key constants.
const (
	TXTKeyPeerID          = "id"    // Peer id
	TXTKeyChainID         = "chain" // Chain id
	TXTKeyProtocolVersion = "pv"    // Protocol version (decimal)
	TXTKeyOldestVersion   = "opv"   // Oldest supported version (decimal, optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for Find.
	BrowseTimeout = 10 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen is the longest "key=value" string in one TXT record.
	MaxTXTValueLen = 255
)

// Errors.
var (
	ErrMissingRequired = errors.New("missing required TXT field")
	ErrInvalidTXT      = errors.New("invalid TXT record")
	ErrNotFound        = errors.New("peer not found")
	ErrNoAddress       = errors.New("service has no address")
	ErrInvalidPort     = errors.New("invalid port")
	ErrBrowse          = errors.New("mdns browse failed")
)

// NodeInfo is what a node advertises about itself.
type NodeInfo struct {
	PeerID                 identity.PeerID
	ChainID                string
	ProtocolVersion        uint32
	OldestSupportedVersion uint32

	// Port is the TCP port the node accepts handshakes on.
	Port uint16
}

// Validate checks the fields needed to advertise.
func (n *NodeInfo) Validate() error {
	if n.PeerID.PublicKey == (identity.PublicKey{}) {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPeerID)
	}
	if n.ChainID == "" {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyChainID)
	}
	if n.Port == 0 {
		return ErrInvalidPort
	}
	return nil
}

// Service is a resolved advertisement.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Info         NodeInfo
}

// PeerInfo returns a dial target for the service. IPv4 addresses are
// preferred; the host name is used when no address was resolved.
func (s *Service) PeerInfo() (identity.PeerInfo, error) {
	if s.Port == 0 {
		return identity.PeerInfo{}, ErrInvalidPort
	}
	host := ""
	for _, addr := range s.Addresses {
		ip := net.ParseIP(addr)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			host = addr
			break
		}
		if host == "" {
			host = addr
		}
	}
	if host == "" {
		host = strings.TrimSuffix(s.Host, ".")
	}
	if host == "" {
		return identity.PeerInfo{}, fmt.Errorf("%w: %s", ErrNoAddress, s.InstanceName)
	}
	return identity.PeerInfo{ID: s.Info.PeerID, Host: host, Port: s.Port}, nil
}

// Advertiser publishes the local node.
type Advertiser interface {
	// Advertise starts (or replaces) the advertisement.
	Advertise(ctx context.Context, info *NodeInfo) error

	// Stop withdraws the advertisement.
	Stop() error
}

// Browser finds nodes on the local network.
type Browser interface {
	// Browse streams services as they are resolved. The channel is closed
	// when ctx is done.
	Browse(ctx context.Context) (<-chan *Service, error)

	// Find returns the first service advertising peerID.
	Find(ctx context.Context, peerID identity.PeerID) (*Service, error)

	// Stop cancels active browse operations.
	Stop()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL for the DNS records. Zero uses the zeroconf default.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx has no deadline.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	Interface string

	// ChainID, if set, drops services advertising another chain.
	ChainID string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}
