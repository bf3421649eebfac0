// Package protocol is the typed message model of a peer connection.
//
// PeerMessage is a closed union. Tier1Handshake, Tier2Handshake and Routed
// are decoded into typed values; every other kind in the catalogue is
// recognized by its tag and reported as an UnsupportedKindError.
//
// Routed messages carry a borsh-encoded, signed RoutedMessage inside the
// envelope. The signature covers sha256(borsh(target, author, body)), so a
// routed message can be checked without knowing the envelope it came in.
package protocol
