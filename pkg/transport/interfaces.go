package transport

import (
	"context"
	"net"
	"time"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/protocol"
)

// MessageConn carries typed peer messages in both directions.
// Implemented by PeerConn.
type MessageConn interface {
	// Send encodes and writes one message.
	Send(m protocol.PeerMessage) error

	// Receive reads the next message, waiting at most timeout (0 = forever).
	Receive(timeout time.Duration) (protocol.PeerMessage, error)

	// Close closes the connection.
	Close() error

	// ConnID identifies the connection in logs.
	ConnID() string

	// Role is the local side of the handshake.
	Role() log.Role

	// SetPeerID tags later log events with the remote peer.
	SetPeerID(id string)

	// Logger returns the protocol logger, never nil.
	Logger() log.Logger

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
}

// TransportServer accepts peer connections.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ MessageConn     = (*PeerConn)(nil)
	_ TransportServer = (*Server)(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
