package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
	"github.com/near-handshake/handshake-go/pkg/node"
	"github.com/near-handshake/handshake-go/pkg/protocol"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

var testGenesis = protocol.GenesisID{
	ChainID: "localnet",
	Hash:    identity.MustParseCryptoHash("GyGacsMkHfq1n1HQ3mHF4xXqAMTDR183FnckCaZ2r5yL"),
}

func testNode(t *testing.T, seed byte) *node.Node {
	t.Helper()
	id, err := identity.FromSeed(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	n, err := node.New(node.Config{Identity: id, Policy: node.DefaultPolicy(testGenesis)})
	require.NoError(t, err)
	return n
}

func pipeConns(t *testing.T, logger log.Logger) (*PeerConn, *PeerConn) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewPeerConn(a, ConnConfig{Role: log.RoleInitiator, ConnID: "a", Logger: logger})
	cb := NewPeerConn(b, ConnConfig{Role: log.RoleResponder, ConnID: "b", Logger: logger})
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func sendAsync(c *PeerConn, m protocol.PeerMessage) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(m) }()
	return errCh
}

func sendRawAsync(c *PeerConn, data []byte) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.SendRaw(data) }()
	return errCh
}

func TestPeerConnHandshakeRoundTrip(t *testing.T) {
	a := testNode(t, 1)
	b := testNode(t, 2)
	logger := &capturingLogger{}
	ca, cb := pipeConns(t, logger)

	h := a.CreateHandshake(b.PeerID(), 1)
	errCh := sendAsync(ca, &protocol.Tier2Handshake{Handshake: *h})

	got, err := cb.Receive(time.Second)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	hs, ok := got.(*protocol.Tier2Handshake)
	require.True(t, ok, "got %T", got)
	assert.True(t, hs.SenderPeerID.Equal(a.PeerID()))
	ok, reason := b.VerifyHandshake(&hs.Handshake)
	assert.True(t, ok, "reason %s", reason)

	var wireEvents []log.Event
	for _, e := range logger.Events() {
		if e.Layer == log.LayerWire {
			wireEvents = append(wireEvents, e)
		}
	}
	require.Len(t, wireEvents, 2)
	assert.Equal(t, log.DirectionOut, wireEvents[0].Direction)
	assert.Equal(t, log.RoleInitiator, wireEvents[0].LocalRole)
	assert.Equal(t, log.DirectionIn, wireEvents[1].Direction)
	assert.Equal(t, log.RoleResponder, wireEvents[1].LocalRole)
	require.NotNil(t, wireEvents[1].Message)
	assert.Equal(t, wire.KindTier2Handshake, wireEvents[1].Message.Kind)
	require.NotNil(t, wireEvents[1].Message.EdgeNonce)
	assert.Equal(t, uint64(1), *wireEvents[1].Message.EdgeNonce)
	assert.Equal(t, "localnet", wireEvents[1].Message.ChainID)
}

func TestPeerConnRoutedRoundTrip(t *testing.T) {
	a := testNode(t, 1)
	b := testNode(t, 2)
	ca, cb := pipeConns(t, nil)

	ping, err := a.CreatePing(b.PeerID(), 3)
	require.NoError(t, err)
	errCh := sendAsync(ca, ping)

	got, err := cb.Receive(time.Second)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	routed, ok := got.(*protocol.Routed)
	require.True(t, ok, "got %T", got)
	require.NoError(t, b.CheckRouted(routed.Msg))
	assert.Equal(t, protocol.Ping{Nonce: 3, Source: a.PeerID()}, routed.Msg.Body)
}

func TestPeerConnDecodeErrorKeepsStreamAligned(t *testing.T) {
	a := testNode(t, 1)
	b := testNode(t, 2)
	ca, cb := pipeConns(t, nil)

	// An unsupported kind, then garbage, then a real handshake.
	disconnect := []byte{0x92, 0x01, 0x00} // field 18 (Disconnect), empty message
	go func() {
		ca.SendRaw(disconnect)
		ca.SendRaw([]byte{0xFF, 0xFF, 0xFF})
		ca.Send(&protocol.Tier2Handshake{Handshake: *a.CreateHandshake(b.PeerID(), 1)})
	}()

	_, err := cb.Receive(time.Second)
	var unsupported *protocol.UnsupportedKindError
	require.True(t, errors.As(err, &unsupported), "err %v", err)
	assert.Equal(t, wire.KindDisconnect, unsupported.Kind)
	assert.ErrorIs(t, err, protocol.ErrDecode)

	_, err = cb.Receive(time.Second)
	assert.ErrorIs(t, err, protocol.ErrDecode)

	got, err := cb.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, wire.KindTier2Handshake, got.Kind())
}

func TestPeerConnReceiveTimeout(t *testing.T) {
	_, cb := pipeConns(t, nil)

	_, err := cb.Receive(20 * time.Millisecond)
	require.Error(t, err)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr), "err %v", err)
	assert.True(t, netErr.Timeout())
}

func TestPeerConnPeerClosed(t *testing.T) {
	ca, cb := pipeConns(t, nil)
	ca.Close()

	_, err := cb.Receive(time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPeerConnCloseUnblocksReceive(t *testing.T) {
	_, cb := pipeConns(t, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := cb.Receive(0)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, cb.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}

	assert.ErrorIs(t, cb.SendRaw([]byte{1}), ErrConnectionClosed)
	select {
	case <-cb.Done():
	default:
		t.Error("Done not closed")
	}
	assert.NoError(t, cb.Close(), "second Close")
}

func TestPeerConnStateEvents(t *testing.T) {
	logger := &capturingLogger{}
	a, _ := net.Pipe()
	c := NewPeerConn(a, ConnConfig{Logger: logger})
	c.SetPeerID("ed25519:peer")
	c.Close()

	events := logger.Events()
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ConnectionID, "generated connection id")
	assert.Equal(t, "CONNECTED", events[0].StateChange.NewState)
	assert.Equal(t, "CLOSED", events[1].StateChange.NewState)
	assert.Equal(t, "ed25519:peer", events[1].PeerID)
}

func TestPeerConnCountsFrames(t *testing.T) {
	m := metrics.New(false)
	a, b := net.Pipe()
	ca := NewPeerConn(a, ConnConfig{Metrics: m})
	cb := NewPeerConn(b, ConnConfig{Metrics: m})
	defer ca.Close()
	defer cb.Close()

	errCh := sendRawAsync(ca, []byte{0x92, 0x01, 0x00})
	cb.Receive(time.Second)
	require.NoError(t, <-errCh)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var frames int
	for _, f := range families {
		if f.GetName() == "near_handshake_frames_total" {
			frames = len(f.GetMetric())
		}
	}
	assert.Equal(t, 2, frames, "in and out series")
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrFrameTruncated, "framing"},
		{ErrMessageTooLarge, "framing"},
		{protocol.ErrDecode, "decode"},
		{&protocol.UnsupportedKindError{Kind: wire.KindBlock}, "decode"},
		{io.ErrClosedPipe, "io"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorClass(tt.err), "%v", tt.err)
	}
}
