package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/near-handshake/handshake-go/pkg/wire"
)

// PeerMessage is a message exchanged on a peer connection. The set of
// implementations is closed.
type PeerMessage interface {
	Kind() wire.MessageKind
	isPeerMessage()
}

// Tier1Handshake is a handshake on a tier 1 (validator) connection.
type Tier1Handshake struct {
	Handshake
}

// Tier2Handshake is a handshake on a regular peer connection.
type Tier2Handshake struct {
	Handshake
}

// Routed carries a signed routed message.
type Routed struct {
	RoutedMessageV2
}

func (*Tier1Handshake) Kind() wire.MessageKind { return wire.KindTier1Handshake }
func (*Tier2Handshake) Kind() wire.MessageKind { return wire.KindTier2Handshake }
func (*Routed) Kind() wire.MessageKind         { return wire.KindRouted }

func (*Tier1Handshake) isPeerMessage() {}
func (*Tier2Handshake) isPeerMessage() {}
func (*Routed) isPeerMessage()         {}

var (
	_ PeerMessage = (*Tier1Handshake)(nil)
	_ PeerMessage = (*Tier2Handshake)(nil)
	_ PeerMessage = (*Routed)(nil)
)

// HandshakeOf returns the handshake carried by m, if any.
func HandshakeOf(m PeerMessage) (*Handshake, bool) {
	switch v := m.(type) {
	case *Tier1Handshake:
		return &v.Handshake, true
	case *Tier2Handshake:
		return &v.Handshake, true
	default:
		return nil, false
	}
}

// Encode maps m to the outer envelope.
func Encode(m PeerMessage) (*wire.PeerMessage, error) {
	switch v := m.(type) {
	case *Tier1Handshake:
		h, err := v.Handshake.toWire()
		if err != nil {
			return nil, err
		}
		return &wire.PeerMessage{Kind: wire.KindTier1Handshake, Handshake: h}, nil
	case *Tier2Handshake:
		h, err := v.Handshake.toWire()
		if err != nil {
			return nil, err
		}
		return &wire.PeerMessage{Kind: wire.KindTier2Handshake, Handshake: h}, nil
	case *Routed:
		if v.Msg == nil {
			return nil, errors.New("routed without message")
		}
		inner, err := v.Msg.Encode()
		if err != nil {
			return nil, err
		}
		r := &wire.RoutedMessage{Borsh: inner, NumHops: v.NumHops}
		if v.CreatedAt != nil {
			r.CreatedAt = timestamppb.New(*v.CreatedAt)
		}
		return &wire.PeerMessage{Kind: wire.KindRouted, Routed: r}, nil
	default:
		return nil, fmt.Errorf("encode: unexpected message type %T", m)
	}
}

// Decode maps an envelope back to a PeerMessage. Kinds other than the two
// handshakes and Routed yield an *UnsupportedKindError.
func Decode(w *wire.PeerMessage) (PeerMessage, error) {
	switch w.Kind {
	case wire.KindTier1Handshake, wire.KindTier2Handshake:
		if w.Handshake == nil {
			return nil, decodeErr(w.Kind.String(), errors.New("missing handshake"))
		}
		h, err := handshakeFromWire(w.Handshake)
		if err != nil {
			return nil, err
		}
		if w.Kind == wire.KindTier1Handshake {
			return &Tier1Handshake{Handshake: *h}, nil
		}
		return &Tier2Handshake{Handshake: *h}, nil

	case wire.KindRouted:
		if w.Routed == nil {
			return nil, decodeErr("routed", errors.New("missing routed message"))
		}
		msg, err := DecodeRoutedMessage(w.Routed.Borsh)
		if err != nil {
			return nil, decodeErr("routed borsh", err)
		}
		r := &Routed{RoutedMessageV2: RoutedMessageV2{Msg: msg, NumHops: w.Routed.NumHops}}
		if w.Routed.CreatedAt != nil {
			t := w.Routed.CreatedAt.AsTime()
			r.CreatedAt = &t
		}
		return r, nil

	default:
		return nil, &UnsupportedKindError{Kind: w.Kind}
	}
}

// Marshal encodes m to the bytes of one frame.
func Marshal(m PeerMessage) ([]byte, error) {
	w, err := Encode(m)
	if err != nil {
		return nil, err
	}
	return w.Encode()
}

// Unmarshal decodes the bytes of one frame. It returns the envelope kind
// alongside the error when the envelope parsed but its payload did not.
func Unmarshal(data []byte) (PeerMessage, wire.MessageKind, error) {
	w, err := wire.DecodePeerMessage(data)
	if err != nil {
		return nil, wire.KindUnknown, decodeErr("peer message", err)
	}
	m, err := Decode(w)
	if err != nil {
		return nil, w.Kind, err
	}
	return m, w.Kind, nil
}
