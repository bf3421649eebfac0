package wire

import (
	"fmt"
)

// Target tags of the routed message destination enum. Tag 0 addresses an
// account, which this node never produces or accepts.
const (
	TargetTagAccountID uint8 = 0
	TargetTagPeerID    uint8 = 1
	TargetTagHash      uint8 = 2
)

// Body tags of the routed message body enum that this node produces.
const (
	BodyTagPing uint8 = 14
	BodyTagPong uint8 = 15
)

const (
	publicKeyLen = 33
	signatureLen = 65
	hashLen      = 32
)

// BorshRoutedMessage is the borsh layout of a signed routed message:
//
//	target (enum: 1 = peer id, 2 = hash) | author | signature | ttl u8 | body (enum)
//
// The body is the last field, so its encoded fields after the tag are kept
// as raw bytes. Bodies this node does not understand still round-trip and
// can still be hash-checked.
type BorshRoutedMessage struct {
	TargetTag  uint8
	TargetPeer BorshPublicKey
	TargetHash [32]byte
	Author     BorshPublicKey
	Signature  BorshSignature
	TTL        uint8
	BodyTag    uint8
	Body       []byte
}

// Encode returns the borsh bytes of the message.
func (m *BorshRoutedMessage) Encode() ([]byte, error) {
	head, err := m.appendTarget(nil)
	if err != nil {
		return nil, err
	}
	author, err := Marshal(m.Author)
	if err != nil {
		return nil, err
	}
	sig, err := Marshal(m.Signature)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(head)+len(author)+len(sig)+2+len(m.Body))
	out = append(out, head...)
	out = append(out, author...)
	out = append(out, sig...)
	out = append(out, m.TTL, m.BodyTag)
	return append(out, m.Body...), nil
}

// SigningBytes returns borsh(target, author, body), the bytes whose hash the
// author signs. The TTL and the signature itself are not covered.
func (m *BorshRoutedMessage) SigningBytes() ([]byte, error) {
	out, err := m.appendTarget(nil)
	if err != nil {
		return nil, err
	}
	author, err := Marshal(m.Author)
	if err != nil {
		return nil, err
	}
	out = append(out, author...)
	out = append(out, m.BodyTag)
	return append(out, m.Body...), nil
}

func (m *BorshRoutedMessage) appendTarget(out []byte) ([]byte, error) {
	out = append(out, m.TargetTag)
	switch m.TargetTag {
	case TargetTagPeerID:
		pk, err := Marshal(m.TargetPeer)
		if err != nil {
			return nil, err
		}
		return append(out, pk...), nil
	case TargetTagHash:
		return append(out, m.TargetHash[:]...), nil
	default:
		return nil, fmt.Errorf("%w: routed target tag %d", ErrMalformed, m.TargetTag)
	}
}

// DecodeBorshRoutedMessage parses the borsh bytes of a routed message.
func DecodeBorshRoutedMessage(data []byte) (*BorshRoutedMessage, error) {
	m := &BorshRoutedMessage{}
	rest := data

	if len(rest) < 1 {
		return nil, fmt.Errorf("%w: empty routed message", ErrMalformed)
	}
	m.TargetTag = rest[0]
	rest = rest[1:]

	switch m.TargetTag {
	case TargetTagPeerID:
		if len(rest) < publicKeyLen {
			return nil, fmt.Errorf("%w: truncated routed target", ErrMalformed)
		}
		if err := Unmarshal(rest[:publicKeyLen], &m.TargetPeer); err != nil {
			return nil, err
		}
		rest = rest[publicKeyLen:]
	case TargetTagHash:
		if len(rest) < hashLen {
			return nil, fmt.Errorf("%w: truncated routed target", ErrMalformed)
		}
		copy(m.TargetHash[:], rest[:hashLen])
		rest = rest[hashLen:]
	default:
		return nil, fmt.Errorf("%w: routed target tag %d", ErrMalformed, m.TargetTag)
	}

	if len(rest) < publicKeyLen+signatureLen+2 {
		return nil, fmt.Errorf("%w: truncated routed message", ErrMalformed)
	}
	if err := Unmarshal(rest[:publicKeyLen], &m.Author); err != nil {
		return nil, err
	}
	rest = rest[publicKeyLen:]
	if err := Unmarshal(rest[:signatureLen], &m.Signature); err != nil {
		return nil, err
	}
	rest = rest[signatureLen:]

	m.TTL = rest[0]
	m.BodyTag = rest[1]
	m.Body = append([]byte(nil), rest[2:]...)
	return m, nil
}
