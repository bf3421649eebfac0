// Package session drives the handshake and ping/pong exchange on one
// connection.
//
// The exchange is half-duplex: send handshake, await handshake, send
// ping, await pong. A message of the wrong kind for the current state is a
// protocol violation and ends the session.
//
// Initiator:
//
//	IDLE ── send handshake ──► HANDSHAKE_SENT ── verify reply ──► HANDSHAKE_VERIFIED ──► READY
//	                                 └──────── reject ──► REJECTED
//
// Responder:
//
//	IDLE ── verify handshake ──► HANDSHAKE_VERIFIED ── send handshake ──► READY
//	  └──────── reject ──► REJECTED
//
// Every state except REJECTED moves to CLOSED when the connection ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
	"github.com/near-handshake/handshake-go/pkg/node"
	"github.com/near-handshake/handshake-go/pkg/protocol"
	"github.com/near-handshake/handshake-go/pkg/transport"
)

// Session errors.
var (
	// ErrUnexpectedMessage is returned when the peer sends a message the
	// current state does not expect.
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrPeerMismatch is returned when the handshake reply comes from a
	// peer other than the one dialed.
	ErrPeerMismatch = errors.New("handshake from unexpected peer")
)

// ReceivePolicy bounds how often a receive is retried after a frame that
// could not be decoded. I/O and framing errors are never retried.
type ReceivePolicy struct {
	// MaxRetries is the number of undecodable frames skipped per receive.
	MaxRetries int

	// Timeout bounds each read (0 = no timeout).
	Timeout time.Duration
}

// DefaultReceivePolicy returns the default receive policy.
func DefaultReceivePolicy() ReceivePolicy {
	return ReceivePolicy{MaxRetries: 3}
}

// Config configures a Session.
type Config struct {
	// Node is the local identity and policy. Required.
	Node *node.Node

	// Conn is the peer connection. Required.
	Conn transport.MessageConn

	// Receive is the receive retry policy.
	Receive ReceivePolicy

	// Tier1 sends Tier1Handshake instead of Tier2Handshake.
	Tier1 bool

	// Metrics records handshake and routed outcomes (optional).
	Metrics *metrics.Metrics
}

// Session is the handshake state machine of one connection. Its methods
// must be called from one goroutine at a time, except State, Peer and
// Close.
type Session struct {
	node    *node.Node
	conn    transport.MessageConn
	policy  ReceivePolicy
	tier1   bool
	metrics *metrics.Metrics
	role    string
	started time.Time

	mu            sync.Mutex
	state         State
	peerHandshake *protocol.Handshake
	closeOnce     sync.Once
}

// New creates a session in StateIdle.
func New(config Config) (*Session, error) {
	if config.Node == nil {
		return nil, errors.New("session: node is required")
	}
	if config.Conn == nil {
		return nil, errors.New("session: connection is required")
	}
	if config.Receive.MaxRetries < 0 {
		return nil, fmt.Errorf("session: negative retry bound %d", config.Receive.MaxRetries)
	}
	return &Session{
		node:    config.Node,
		conn:    config.Conn,
		policy:  config.Receive,
		tier1:   config.Tier1,
		metrics: config.Metrics,
		role:    strings.ToLower(config.Conn.Role().String()),
		started: time.Now(),
		state:   StateIdle,
	}, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer returns the remote peer id once its handshake has been received.
func (s *Session) Peer() (identity.PeerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerHandshake == nil {
		return identity.PeerID{}, false
	}
	return s.peerHandshake.SenderPeerID, true
}

// PeerHandshake returns the handshake received from the peer, or nil.
func (s *Session) PeerHandshake() *protocol.Handshake {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerHandshake
}

// Initiate sends a handshake to target with nonce and verifies the reply.
// On success the session is StateReady. A rejected reply returns a
// *node.RejectedError and closes the connection.
func (s *Session) Initiate(ctx context.Context, target identity.PeerID, nonce uint64) (err error) {
	if err := s.expectState(StateIdle); err != nil {
		return err
	}
	defer s.guard(ctx, &err)()

	if err := s.send(s.handshakeMessage(s.node.CreateHandshake(target, nonce))); err != nil {
		return err
	}
	s.transition(StateHandshakeSent, "")

	h, err := s.receiveHandshake(ctx)
	if err != nil {
		return err
	}
	if !h.SenderPeerID.Equal(target) {
		return s.fail(fmt.Errorf("%w: dialed %s, got %s", ErrPeerMismatch, target, h.SenderPeerID))
	}
	if err := s.verifyHandshake(h); err != nil {
		return err
	}
	s.transition(StateReady, "")
	return nil
}

// Respond waits for the peer's handshake, verifies it and answers with a
// handshake carrying the same nonce. On success the session is StateReady.
func (s *Session) Respond(ctx context.Context) (err error) {
	if err := s.expectState(StateIdle); err != nil {
		return err
	}
	defer s.guard(ctx, &err)()

	h, err := s.receiveHandshake(ctx)
	if err != nil {
		return err
	}
	if err := s.verifyHandshake(h); err != nil {
		return err
	}

	reply := s.node.CreateHandshake(h.SenderPeerID, h.PartialEdgeInfo.Nonce)
	if err := s.send(s.handshakeMessage(reply)); err != nil {
		return err
	}
	s.transition(StateReady, "")
	return nil
}

// Ping sends a ping with nonce and waits for the matching pong. It returns
// the round-trip time.
func (s *Session) Ping(ctx context.Context, nonce uint64) (rtt time.Duration, err error) {
	if err := s.expectState(StateReady); err != nil {
		return 0, err
	}
	defer s.guard(ctx, &err)()

	peer, _ := s.Peer()
	ping, err := s.node.CreatePing(peer, nonce)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if err := s.send(ping); err != nil {
		return 0, err
	}
	s.logRouted(log.DirectionOut, ping, false)
	s.metrics.Routed(metrics.DirectionOut, "Ping", metrics.ResultSent)

	msg, err := s.receiveRouted(ctx)
	if err != nil {
		return 0, err
	}
	pong, ok := msg.Msg.Body.(protocol.Pong)
	if !ok {
		return 0, s.fail(fmt.Errorf("%w: %s while awaiting Pong", ErrUnexpectedMessage, protocol.BodyName(msg.Msg.Body)))
	}
	if pong.Nonce != nonce {
		return 0, s.fail(fmt.Errorf("%w: pong nonce %d, want %d", ErrUnexpectedMessage, pong.Nonce, nonce))
	}
	return time.Since(start), nil
}

// Serve answers pings with pongs until the peer disconnects or ctx ends.
// A clean disconnect returns nil.
func (s *Session) Serve(ctx context.Context) (err error) {
	if err := s.expectState(StateReady); err != nil {
		return err
	}
	defer s.guard(ctx, &err)()

	for {
		msg, err := s.receiveRouted(ctx)
		if err != nil {
			if isDisconnect(err) && ctx.Err() == nil {
				s.Close()
				return nil
			}
			return err
		}
		ping, ok := msg.Msg.Body.(protocol.Ping)
		if !ok {
			return s.fail(fmt.Errorf("%w: %s while serving", ErrUnexpectedMessage, protocol.BodyName(msg.Msg.Body)))
		}
		pong, err := s.node.CreatePong(msg.Msg.Author, ping.Nonce)
		if err != nil {
			return err
		}
		if err := s.send(pong); err != nil {
			return err
		}
		s.logRouted(log.DirectionOut, pong, false)
		s.metrics.Routed(metrics.DirectionOut, "Pong", metrics.ResultSent)
	}
}

// Close closes the connection and moves the session to StateClosed. A
// rejected session stays in StateRejected.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		s.transition(StateClosed, "")
		s.metrics.SessionEnded(s.role, time.Since(s.started))
	})
	return err
}

// guard closes the connection when ctx ends so that blocked reads return,
// and reports ctx's error in place of the resulting I/O error.
func (s *Session) guard(ctx context.Context, errp *error) func() {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	return func() {
		stop()
		if *errp != nil && ctx.Err() != nil {
			*errp = fmt.Errorf("session: %w", ctx.Err())
		}
	}
}

func (s *Session) expectState(want State) error {
	if got := s.State(); got != want {
		return fmt.Errorf("%w: in %s, need %s", ErrInvalidTransition, got, want)
	}
	return nil
}

func (s *Session) transition(to State, reason string) {
	s.mu.Lock()
	from := s.state
	if from == to || !CanTransition(from, to) {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	e := s.event(log.DirectionIn, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySession,
		OldState: from.String(),
		NewState: to.String(),
		Reason:   reason,
	}
	s.conn.Logger().Log(e)
}

// fail ends the session after a protocol violation.
func (s *Session) fail(err error) error {
	e := s.event(log.DirectionIn, log.CategoryError)
	e.Error = &log.ErrorEventData{
		Layer:   log.LayerSession,
		Message: err.Error(),
		Class:   "protocol",
		Context: s.State().String(),
	}
	s.conn.Logger().Log(e)
	s.Close()
	return err
}

func (s *Session) send(m protocol.PeerMessage) error {
	if err := s.conn.Send(m); err != nil {
		s.Close()
		return err
	}
	return nil
}

// receive reads the next message, skipping up to MaxRetries malformed
// frames. A well-formed message of an unsupported kind is a protocol
// violation. Any other error closes the session.
func (s *Session) receive(ctx context.Context) (protocol.PeerMessage, error) {
	skipped := 0
	for {
		m, err := s.conn.Receive(s.policy.Timeout)
		if err == nil {
			return m, nil
		}
		var unsupported *protocol.UnsupportedKindError
		if errors.As(err, &unsupported) {
			return nil, s.fail(fmt.Errorf("%w: %s in %s: %w", ErrUnexpectedMessage, unsupported.Kind, s.State(), err))
		}
		if errors.Is(err, protocol.ErrDecode) && skipped < s.policy.MaxRetries && ctx.Err() == nil {
			skipped++
			continue
		}
		s.Close()
		return nil, err
	}
}

func (s *Session) receiveHandshake(ctx context.Context) (*protocol.Handshake, error) {
	m, err := s.receive(ctx)
	if err != nil {
		return nil, err
	}
	h, ok := protocol.HandshakeOf(m)
	if !ok {
		return nil, s.fail(fmt.Errorf("%w: %s while awaiting handshake", ErrUnexpectedMessage, m.Kind()))
	}
	return h, nil
}

func (s *Session) receiveRouted(ctx context.Context) (*protocol.Routed, error) {
	m, err := s.receive(ctx)
	if err != nil {
		return nil, err
	}
	routed, ok := m.(*protocol.Routed)
	if !ok {
		return nil, s.fail(fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, m.Kind(), s.State()))
	}
	name := protocol.BodyName(routed.Msg.Body)
	if err := s.node.CheckRouted(routed.Msg); err != nil {
		s.logRouted(log.DirectionIn, routed, false)
		s.metrics.Routed(metrics.DirectionIn, name, metrics.ResultInvalid)
		return nil, s.fail(err)
	}
	s.logRouted(log.DirectionIn, routed, true)
	s.metrics.Routed(metrics.DirectionIn, name, metrics.ResultVerified)
	return routed, nil
}

// verifyHandshake checks h and records the outcome. A rejection closes the
// connection and leaves the session in StateRejected.
func (s *Session) verifyHandshake(h *protocol.Handshake) error {
	s.mu.Lock()
	s.peerHandshake = h
	s.mu.Unlock()
	s.conn.SetPeerID(h.SenderPeerID.String())

	if err := s.node.CheckHandshake(h); err != nil {
		var rejected *node.RejectedError
		reason := string(node.ReasonBadSignature)
		if errors.As(err, &rejected) {
			reason = string(rejected.Reason)
		}
		s.metrics.Handshake(s.role, metrics.ResultRejected, reason)
		s.transition(StateRejected, reason)
		s.Close()
		return err
	}
	s.metrics.Handshake(s.role, metrics.ResultAccepted, "")
	s.transition(StateHandshakeVerified, "")
	return nil
}

func (s *Session) handshakeMessage(h *protocol.Handshake) protocol.PeerMessage {
	if s.tier1 {
		return &protocol.Tier1Handshake{Handshake: *h}
	}
	return &protocol.Tier2Handshake{Handshake: *h}
}

func (s *Session) event(direction log.Direction, category log.Category) log.Event {
	e := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.conn.ConnID(),
		Direction:    direction,
		Layer:        log.LayerSession,
		Category:     category,
		LocalRole:    s.conn.Role(),
		ChainID:      s.node.Policy().ChainInfo.GenesisID.ChainID,
	}
	if peer, ok := s.Peer(); ok {
		e.PeerID = peer.String()
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		e.RemoteAddr = addr.String()
	}
	return e
}

func (s *Session) logRouted(direction log.Direction, r *protocol.Routed, verified bool) {
	e := s.event(direction, log.CategoryRouted)
	ev := &log.RoutedEvent{
		Body:      protocol.BodyName(r.Msg.Body),
		Author:    r.Msg.Author.String(),
		Target:    r.Msg.Target.String(),
		TTL:       r.Msg.TTL,
		CreatedAt: r.CreatedAt,
		Verified:  verified,
	}
	switch b := r.Msg.Body.(type) {
	case protocol.Ping:
		ev.Nonce = &b.Nonce
	case protocol.Pong:
		ev.Nonce = &b.Nonce
	}
	e.Routed = ev
	s.conn.Logger().Log(e)
}

func isDisconnect(err error) bool {
	return errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, io.EOF)
}
