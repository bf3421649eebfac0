package protocol

import (
	"fmt"
	"time"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

// RoutedMessageTTL is the hop budget given to routed messages created here.
// It is carried in the message but not covered by the signature.
const RoutedMessageTTL uint8 = 100

// TargetKind selects how a routed message is addressed.
type TargetKind uint8

const (
	TargetPeerID TargetKind = TargetKind(wire.TargetTagPeerID)
	TargetHash   TargetKind = TargetKind(wire.TargetTagHash)
)

// Target is the destination of a routed message.
type Target struct {
	Kind   TargetKind
	PeerID identity.PeerID
	Hash   identity.CryptoHash
}

// PeerTarget addresses a routed message to a peer.
func PeerTarget(id identity.PeerID) Target {
	return Target{Kind: TargetPeerID, PeerID: id}
}

// HashTarget addresses a routed message to a message hash.
func HashTarget(h identity.CryptoHash) Target {
	return Target{Kind: TargetHash, Hash: h}
}

func (t Target) String() string {
	if t.Kind == TargetHash {
		return "hash:" + t.Hash.String()
	}
	return t.PeerID.String()
}

// RoutedBody is the payload of a routed message.
type RoutedBody interface {
	bodyTag() uint8
	encodeBody() ([]byte, error)
}

// Ping asks the target to answer with a Pong carrying the same nonce.
type Ping struct {
	Nonce  uint64
	Source identity.PeerID
}

// Pong answers a Ping with the same nonce.
type Pong struct {
	Nonce  uint64
	Source identity.PeerID
}

// OpaqueBody is a routed body this node does not interpret. Data holds the
// encoded fields following the tag.
type OpaqueBody struct {
	Tag  uint8
	Data []byte
}

func (Ping) bodyTag() uint8         { return wire.BodyTagPing }
func (Pong) bodyTag() uint8         { return wire.BodyTagPong }
func (b OpaqueBody) bodyTag() uint8 { return b.Tag }

func (p Ping) encodeBody() ([]byte, error) {
	return wire.Marshal(wire.BorshPingPong{Nonce: p.Nonce, Source: borshKey(p.Source.PublicKey)})
}

func (p Pong) encodeBody() ([]byte, error) {
	return wire.Marshal(wire.BorshPingPong{Nonce: p.Nonce, Source: borshKey(p.Source.PublicKey)})
}

func (b OpaqueBody) encodeBody() ([]byte, error) {
	return b.Data, nil
}

// BodyName names a routed body for logs.
func BodyName(b RoutedBody) string {
	switch b.(type) {
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	default:
		return fmt.Sprintf("Body(%d)", b.bodyTag())
	}
}

func decodeBody(tag uint8, data []byte) (RoutedBody, error) {
	switch tag {
	case wire.BodyTagPing, wire.BodyTagPong:
		var b wire.BorshPingPong
		if err := wire.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		src, err := peerFromBorsh(b.Source)
		if err != nil {
			return nil, err
		}
		if tag == wire.BodyTagPing {
			return Ping{Nonce: b.Nonce, Source: src}, nil
		}
		return Pong{Nonce: b.Nonce, Source: src}, nil
	default:
		return OpaqueBody{Tag: tag, Data: append([]byte(nil), data...)}, nil
	}
}

// RawRoutedMessage is an unsigned routed message.
type RawRoutedMessage struct {
	Target Target
	Body   RoutedBody
}

// Sign signs the message as author with the default TTL.
func (r RawRoutedMessage) Sign(author *identity.Identity) (*RoutedMessage, error) {
	msg := &RoutedMessage{
		Target: r.Target,
		Author: author.PeerID(),
		TTL:    RoutedMessageTTL,
		Body:   r.Body,
	}
	hash, err := msg.Hash()
	if err != nil {
		return nil, err
	}
	msg.Signature = author.Sign(hash[:])
	return msg, nil
}

// RoutedMessage is a signed, addressed message.
type RoutedMessage struct {
	Target    Target
	Author    identity.PeerID
	Signature identity.Signature
	TTL       uint8
	Body      RoutedBody
}

func (m *RoutedMessage) toBorsh() (*wire.BorshRoutedMessage, error) {
	if m.Body == nil {
		return nil, fmt.Errorf("routed message without body")
	}
	body, err := m.Body.encodeBody()
	if err != nil {
		return nil, err
	}
	b := &wire.BorshRoutedMessage{
		TargetTag: uint8(m.Target.Kind),
		Author:    borshKey(m.Author.PublicKey),
		Signature: borshSignature(m.Signature),
		TTL:       m.TTL,
		BodyTag:   m.Body.bodyTag(),
		Body:      body,
	}
	switch m.Target.Kind {
	case TargetPeerID:
		b.TargetPeer = borshKey(m.Target.PeerID.PublicKey)
	case TargetHash:
		b.TargetHash = m.Target.Hash
	default:
		return nil, fmt.Errorf("routed target kind %d", m.Target.Kind)
	}
	return b, nil
}

// Hash returns sha256(borsh(target, author, body)), the digest the author signs.
func (m *RoutedMessage) Hash() (identity.CryptoHash, error) {
	b, err := m.toBorsh()
	if err != nil {
		return identity.CryptoHash{}, err
	}
	data, err := b.SigningBytes()
	if err != nil {
		return identity.CryptoHash{}, err
	}
	return identity.Hash(data), nil
}

// Verify reports whether the signature was made by the author over the
// message hash.
func (m *RoutedMessage) Verify() bool {
	hash, err := m.Hash()
	if err != nil {
		return false
	}
	return m.Author.Verify(hash[:], m.Signature)
}

// Encode returns the borsh bytes of the message.
func (m *RoutedMessage) Encode() ([]byte, error) {
	b, err := m.toBorsh()
	if err != nil {
		return nil, err
	}
	return b.Encode()
}

// DecodeRoutedMessage parses the borsh bytes of a routed message.
func DecodeRoutedMessage(data []byte) (*RoutedMessage, error) {
	b, err := wire.DecodeBorshRoutedMessage(data)
	if err != nil {
		return nil, err
	}
	m := &RoutedMessage{TTL: b.TTL}

	switch b.TargetTag {
	case wire.TargetTagPeerID:
		id, err := peerFromBorsh(b.TargetPeer)
		if err != nil {
			return nil, err
		}
		m.Target = PeerTarget(id)
	case wire.TargetTagHash:
		m.Target = HashTarget(identity.CryptoHash(b.TargetHash))
	}

	if m.Author, err = peerFromBorsh(b.Author); err != nil {
		return nil, err
	}
	if m.Signature, err = signatureFromBorsh(b.Signature); err != nil {
		return nil, err
	}
	if m.Body, err = decodeBody(b.BodyTag, b.Body); err != nil {
		return nil, err
	}
	return m, nil
}

// RoutedMessageV2 is a routed message with its creation time.
// CreatedAt is UTC without a monotonic reading; NumHops is passed through.
type RoutedMessageV2 struct {
	Msg       *RoutedMessage
	CreatedAt *time.Time
	NumHops   *uint32
}

// NewRoutedMessageV2 stamps msg with now.
func NewRoutedMessageV2(msg *RoutedMessage, now time.Time) RoutedMessageV2 {
	t := now.UTC().Round(0)
	return RoutedMessageV2{Msg: msg, CreatedAt: &t}
}
