package identity

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidPeerInfo is returned for malformed "key@host:port" strings.
var ErrInvalidPeerInfo = errors.New("invalid peer info")

// PeerInfo is a peer identifier paired with a dial address.
type PeerInfo struct {
	ID   PeerID
	Host string
	Port uint16
}

// Addr returns host:port for dialing.
func (p PeerInfo) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// String returns the "ed25519:<base58>@host:port" form.
func (p PeerInfo) String() string {
	return p.ID.String() + "@" + p.Addr()
}

// ParsePeerInfo parses "ed25519:<base58>@host:port".
func ParsePeerInfo(s string) (PeerInfo, error) {
	keyPart, addrPart, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return PeerInfo{}, fmt.Errorf("%w: missing '@' in %q", ErrInvalidPeerInfo, s)
	}
	id, err := ParsePeerID(keyPart)
	if err != nil {
		return PeerInfo{}, fmt.Errorf("%w: %v", ErrInvalidPeerInfo, err)
	}
	host, portStr, err := net.SplitHostPort(addrPart)
	if err != nil {
		return PeerInfo{}, fmt.Errorf("%w: %v", ErrInvalidPeerInfo, err)
	}
	if host == "" {
		return PeerInfo{}, fmt.Errorf("%w: empty host", ErrInvalidPeerInfo)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return PeerInfo{}, fmt.Errorf("%w: bad port %q", ErrInvalidPeerInfo, portStr)
	}
	return PeerInfo{ID: id, Host: host, Port: uint16(port)}, nil
}
