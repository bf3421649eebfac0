// Package version provides protocol version constants and the policy used to
// accept or reject a peer's declared versions.
package version

import (
	"fmt"
	"strings"
)

// Protocol versions announced by this node.
const (
	// ProtocolVersion is the version sent in outbound handshakes.
	ProtocolVersion uint32 = 63

	// OldestSupportedVersion is the oldest version this node still speaks.
	OldestSupportedVersion uint32 = 61
)

// OldestPolicy decides how a peer's oldest supported version is compared
// with the local one.
type OldestPolicy int

const (
	// RejectOlder rejects peers whose oldest supported version is below ours.
	RejectOlder OldestPolicy = iota

	// RejectNewer rejects peers whose oldest supported version is above ours.
	RejectNewer
)

// String returns the config form of the policy.
func (p OldestPolicy) String() string {
	switch p {
	case RejectOlder:
		return "reject-older"
	case RejectNewer:
		return "reject-newer"
	default:
		return fmt.Sprintf("OldestPolicy(%d)", int(p))
	}
}

// ParseOldestPolicy parses "reject-older" or "reject-newer". An empty string
// selects RejectOlder.
func ParseOldestPolicy(s string) (OldestPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject-older":
		return RejectOlder, nil
	case "reject-newer":
		return RejectNewer, nil
	default:
		return 0, fmt.Errorf("invalid oldest version policy %q: expected reject-older or reject-newer", s)
	}
}

// Accepts reports whether a peer declaring remote as its oldest supported
// version passes the policy, given local as ours.
func (p OldestPolicy) Accepts(local, remote uint32) bool {
	switch p {
	case RejectNewer:
		return remote <= local
	default:
		return remote >= local
	}
}

// Range is a span of protocol versions a node speaks.
type Range struct {
	Oldest  uint32
	Current uint32
}

// Default returns the range announced by this node.
func Default() Range {
	return Range{Oldest: OldestSupportedVersion, Current: ProtocolVersion}
}

// Validate checks that the range is not inverted.
func (r Range) Validate() error {
	if r.Current == 0 {
		return fmt.Errorf("protocol version must be positive")
	}
	if r.Oldest > r.Current {
		return fmt.Errorf("oldest supported version %d is above protocol version %d", r.Oldest, r.Current)
	}
	return nil
}

// String returns "oldest..current".
func (r Range) String() string {
	return fmt.Sprintf("%d..%d", r.Oldest, r.Current)
}
