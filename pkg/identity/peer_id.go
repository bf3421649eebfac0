package identity

// PeerID identifies a node on the network by its public key.
type PeerID struct {
	PublicKey
}

// NewPeerID wraps a public key.
func NewPeerID(pk PublicKey) PeerID {
	return PeerID{PublicKey: pk}
}

// ParsePeerID parses "ed25519:<base58>".
func ParsePeerID(s string) (PeerID, error) {
	pk, err := ParsePublicKey(s)
	if err != nil {
		return PeerID{}, err
	}
	return PeerID{PublicKey: pk}, nil
}

// PeerIDFromBytes decodes the borsh layout of the underlying key.
func PeerIDFromBytes(b []byte) (PeerID, error) {
	pk, err := PublicKeyFromBytes(b)
	if err != nil {
		return PeerID{}, err
	}
	return PeerID{PublicKey: pk}, nil
}

// Short returns an abbreviated form for logs.
func (p PeerID) Short() string {
	s := p.String()
	if len(s) <= 16 {
		return s
	}
	return s[:16] + ".."
}

// Equal reports whether two peer IDs hold the same key.
func (p PeerID) Equal(other PeerID) bool {
	return p.PublicKey == other.PublicKey
}
