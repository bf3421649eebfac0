package log

import (
	"time"

	"github.com/near-handshake/handshake-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole is the side of the handshake this node plays.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PeerID is the remote peer id, known once a handshake was seen.
	PeerID string `cbor:"8,keyasint,omitempty"`

	// ChainID is the network the local node is configured for.
	ChainID string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Session state
	Routed      *RoutedEvent      `cbor:"13,keyasint,omitempty"` // Ping/pong and other routed bodies
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded envelope).
	LayerWire Layer = 1
	// LayerSession is the handshake and ping/pong state machine.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a framed or decoded peer message.
	CategoryMessage Category = 0
	// CategoryRouted indicates a routed body (ping/pong) was built or checked.
	CategoryRouted Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryRouted:
		return "ROUTED"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side of the handshake the local endpoint plays.
type Role uint8

const (
	// RoleInitiator dialed the connection and sends the first handshake.
	RoleInitiator Role = 0
	// RoleResponder accepted the connection and answers the handshake.
	RoleResponder Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "INITIATOR"
	case RoleResponder:
		return "RESPONDER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw payload bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded peer message at the wire layer.
// Handshake fields are set only for the handshake kinds.
type MessageEvent struct {
	// Kind is the envelope variant.
	Kind wire.MessageKind `cbor:"1,keyasint"`

	// ProtocolVersion declared in a handshake.
	ProtocolVersion *uint32 `cbor:"2,keyasint,omitempty"`

	// OldestSupportedVersion declared in a handshake.
	OldestSupportedVersion *uint32 `cbor:"3,keyasint,omitempty"`

	// SenderPeerID of a handshake.
	SenderPeerID string `cbor:"4,keyasint,omitempty"`

	// TargetPeerID of a handshake.
	TargetPeerID string `cbor:"5,keyasint,omitempty"`

	// EdgeNonce is the nonce of the handshake edge proof.
	EdgeNonce *uint64 `cbor:"6,keyasint,omitempty"`

	// ListenPort announced in a handshake.
	ListenPort *uint16 `cbor:"7,keyasint,omitempty"`

	// ChainID and GenesisHash announced in a handshake.
	ChainID     string `cbor:"8,keyasint,omitempty"`
	GenesisHash string `cbor:"9,keyasint,omitempty"`
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change, such as a handshake reject reason.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a handshake session state change.
	StateEntitySession StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// RoutedEvent captures a routed message body sent or checked.
type RoutedEvent struct {
	// Body names the routed body ("Ping", "Pong", "Body(n)").
	Body string `cbor:"1,keyasint"`

	// Nonce of a ping or pong.
	Nonce *uint64 `cbor:"2,keyasint,omitempty"`

	// Author of the routed message.
	Author string `cbor:"3,keyasint,omitempty"`

	// Target of the routed message.
	Target string `cbor:"4,keyasint,omitempty"`

	// TTL carried by the message.
	TTL uint8 `cbor:"5,keyasint,omitempty"`

	// CreatedAt stamped by the author.
	CreatedAt *time.Time `cbor:"6,keyasint,omitempty"`

	// Verified is true when the signature checked out (inbound only).
	Verified bool `cbor:"7,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Class groups the error: io, framing, decode, rejected, signature, protocol.
	Class string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
