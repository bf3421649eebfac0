package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Field numbers of RoutedMessage.
const (
	routedBorsh     protowire.Number = 1
	routedCreatedAt protowire.Number = 2
	routedNumHops   protowire.Number = 3
)

// RoutedMessage is the schema form of a routed message. Borsh holds the
// signed inner message, which the schema does not describe.
type RoutedMessage struct {
	Borsh     []byte
	CreatedAt *timestamppb.Timestamp
	NumHops   *uint32
}

// Encode returns the protobuf bytes of the routed message.
func (r *RoutedMessage) Encode() ([]byte, error) {
	var b []byte
	b = appendBytesField(b, routedBorsh, r.Borsh)
	if r.CreatedAt != nil {
		ts, err := proto.MarshalOptions{Deterministic: true}.Marshal(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("encode created_at: %w", err)
		}
		b = appendMessageField(b, routedCreatedAt, ts)
	}
	if r.NumHops != nil {
		b = protowire.AppendTag(b, routedNumHops, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*r.NumHops))
	}
	return b, nil
}

// DecodeRoutedMessage parses the protobuf bytes of a routed message.
func DecodeRoutedMessage(data []byte) (*RoutedMessage, error) {
	r := &RoutedMessage{}
	err := parseFields(data, func(f protoField) error {
		switch f.Num {
		case routedBorsh:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			r.Borsh = cloneBytes(f.Bytes)
		case routedCreatedAt:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			ts := &timestamppb.Timestamp{}
			if err := proto.Unmarshal(f.Bytes, ts); err != nil {
				return fmt.Errorf("%w: created_at: %v", ErrMalformed, err)
			}
			if err := ts.CheckValid(); err != nil {
				return fmt.Errorf("%w: created_at: %v", ErrMalformed, err)
			}
			r.CreatedAt = ts
		case routedNumHops:
			v, err := uint32Field(f)
			if err != nil {
				return err
			}
			r.NumHops = &v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// PeerMessage is the outer envelope. Kind selects the populated variant:
// Handshake for the two handshake kinds, Routed for KindRouted and Payload
// (the undecoded variant message) for every other kind.
type PeerMessage struct {
	Kind      MessageKind
	Handshake *Handshake
	Routed    *RoutedMessage
	Payload   []byte
}

// Encode returns the protobuf bytes of the envelope.
func (m *PeerMessage) Encode() ([]byte, error) {
	num, ok := m.Kind.FieldNumber()
	if !ok {
		return nil, fmt.Errorf("encode peer message: unknown kind %s", m.Kind)
	}

	var body []byte
	switch {
	case m.Kind.IsHandshake():
		if m.Handshake == nil {
			return nil, fmt.Errorf("encode peer message: %s without handshake", m.Kind)
		}
		body = m.Handshake.Encode()
	case m.Kind == KindRouted:
		if m.Routed == nil {
			return nil, fmt.Errorf("encode peer message: %s without routed message", m.Kind)
		}
		var err error
		body, err = m.Routed.Encode()
		if err != nil {
			return nil, err
		}
	default:
		body = m.Payload
	}
	return appendMessageField(nil, num, body), nil
}

// DecodePeerMessage parses an envelope. When several oneof fields are
// present the last one wins. An envelope with no variant is malformed.
// trace_context and unknown fields are skipped.
func DecodePeerMessage(data []byte) (*PeerMessage, error) {
	var (
		kind MessageKind
		body []byte
	)
	err := parseFields(data, func(f protoField) error {
		if f.Num == fieldTraceContext {
			return nil
		}
		k, ok := fieldKinds[f.Num]
		if !ok {
			return nil
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		kind, body = k, f.Bytes
		return nil
	})
	if err != nil {
		return nil, err
	}
	if kind == KindUnknown {
		return nil, fmt.Errorf("%w: peer message has no variant", ErrMalformed)
	}

	m := &PeerMessage{Kind: kind}
	switch {
	case kind.IsHandshake():
		m.Handshake, err = DecodeHandshake(body)
	case kind == KindRouted:
		m.Routed, err = DecodeRoutedMessage(body)
	default:
		m.Payload = cloneBytes(body)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return m, nil
}
