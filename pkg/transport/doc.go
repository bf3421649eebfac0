// Package transport moves peer messages over a byte stream.
//
// Every message travels in one frame: a 4-byte little-endian length
// followed by that many bytes of the encoded PeerMessage envelope.
//
//	┌────────────────────────────────┐
//	│  PeerMessage (protobuf)        │
//	├────────────────────────────────┤
//	│  Length prefix (4B, LE)        │
//	├────────────────────────────────┤
//	│  TCP                           │
//	└────────────────────────────────┘
//
// Reads block until a whole frame has arrived, however the sender's
// writes were split on the way. The declared length is capped by the
// configured maximum message size (16 MiB by default) before any payload
// buffer is allocated.
//
// Client dials with a bounded connect timeout. Server accepts connections
// and runs a handler on its own goroutine for each one. Both hand out
// PeerConn values that send and receive typed messages.
package transport
