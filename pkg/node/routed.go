package node

import (
	"errors"
	"fmt"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/protocol"
)

// Routed message errors.
var (
	// ErrSignatureInvalid is returned when a routed message's signature does
	// not verify against its author, or a ping/pong source is not the author.
	ErrSignatureInvalid = errors.New("routed message signature invalid")

	// ErrMisrouted is returned for a routed message addressed to another peer.
	ErrMisrouted = errors.New("routed message not addressed to this node")
)

// CreatePing builds a signed Ping addressed to target.
func (n *Node) CreatePing(target identity.PeerID, nonce uint64) (*protocol.Routed, error) {
	return n.createRouted(target, protocol.Ping{Nonce: nonce, Source: n.id.PeerID()})
}

// CreatePong builds a signed Pong echoing nonce, addressed to target.
func (n *Node) CreatePong(target identity.PeerID, nonce uint64) (*protocol.Routed, error) {
	return n.createRouted(target, protocol.Pong{Nonce: nonce, Source: n.id.PeerID()})
}

func (n *Node) createRouted(target identity.PeerID, body protocol.RoutedBody) (*protocol.Routed, error) {
	msg, err := protocol.RawRoutedMessage{
		Target: protocol.PeerTarget(target),
		Body:   body,
	}.Sign(n.id)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", protocol.BodyName(body), err)
	}
	return &protocol.Routed{RoutedMessageV2: protocol.NewRoutedMessageV2(msg, n.clock())}, nil
}

// VerifyRouted reports whether msg is signed by its author. For Ping and
// Pong the declared source must also be the author.
func (n *Node) VerifyRouted(msg *protocol.RoutedMessage) bool {
	return verifyRouted(msg) == nil
}

// CheckRouted verifies msg and that it is addressed to this node.
func (n *Node) CheckRouted(msg *protocol.RoutedMessage) error {
	if err := verifyRouted(msg); err != nil {
		return err
	}
	if msg.Target.Kind != protocol.TargetPeerID || !msg.Target.PeerID.Equal(n.id.PeerID()) {
		return fmt.Errorf("%w: target %s", ErrMisrouted, msg.Target)
	}
	return nil
}

func verifyRouted(msg *protocol.RoutedMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: empty message", ErrSignatureInvalid)
	}
	if !msg.Verify() {
		return fmt.Errorf("%w: author %s", ErrSignatureInvalid, msg.Author)
	}
	var source identity.PeerID
	switch b := msg.Body.(type) {
	case protocol.Ping:
		source = b.Source
	case protocol.Pong:
		source = b.Source
	default:
		return nil
	}
	if !source.Equal(msg.Author) {
		return fmt.Errorf("%w: source %s is not author %s", ErrSignatureInvalid, source, msg.Author)
	}
	return nil
}
