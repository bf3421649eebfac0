// Package discovery implements mDNS/DNS-SD discovery of handshake peers on
// the local network.
//
// A listening node advertises one instance of the _nearhs._tcp service.
// The instance name is derived from the node's peer id, for example
// "nearhs-DcA2MzgpJbrUATQL". TXT records carry what a dialer needs before
// the first handshake:
//
//	id     peer id ("ed25519:<base58>")
//	chain  chain id of the genesis the node is configured for
//	pv     protocol version
//	opv    oldest supported protocol version
//
// A dialer browses the service, filters by peer id and chain id, and turns
// the resolved entry into an identity.PeerInfo for the transport client.
// Discovery only locates peers. The handshake still authenticates them.
package discovery
