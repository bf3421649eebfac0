package handshake_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
	"github.com/near-handshake/handshake-go/pkg/node"
	"github.com/near-handshake/handshake-go/pkg/protocol"
	"github.com/near-handshake/handshake-go/pkg/session"
	"github.com/near-handshake/handshake-go/pkg/transport"
)

var localnet = protocol.GenesisID{
	ChainID: "localnet",
	Hash:    identity.MustParseCryptoHash("GyGacsMkHfq1n1HQ3mHF4xXqAMTDR183FnckCaZ2r5yL"),
}

func newTestNode(t *testing.T, seed byte, genesis protocol.GenesisID) *node.Node {
	t.Helper()
	id, err := identity.FromSeed(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	n, err := node.New(node.Config{Identity: id, Policy: node.DefaultPolicy(genesis)})
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	return n
}

// startResponder listens on a loopback port and runs Respond then Serve on
// every accepted connection. Each handler's error is sent on the returned
// channel.
func startResponder(t *testing.T, ctx context.Context, n *node.Node, logger log.Logger, m *metrics.Metrics) (*transport.Server, <-chan error) {
	t.Helper()
	results := make(chan error, 4)

	server, err := transport.NewServer(transport.ServerConfig{
		Address: "127.0.0.1:0",
		Logger:  logger,
		Metrics: m,
		Handler: func(ctx context.Context, conn *transport.PeerConn) {
			s, err := session.New(session.Config{
				Node:    n,
				Conn:    conn,
				Receive: session.DefaultReceivePolicy(),
				Metrics: m,
			})
			if err != nil {
				results <- err
				return
			}
			if err := s.Respond(ctx); err != nil {
				results <- err
				return
			}
			results <- s.Serve(ctx)
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server, results
}

// TestE2E_HandshakeAndPingOverTCP runs a full handshake and two pings
// between two nodes over a loopback TCP connection.
func TestE2E_HandshakeAndPingOverTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logPath := filepath.Join(t.TempDir(), "e2e.hslog")
	fileLogger, err := log.NewFileLogger(logPath)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	m := metrics.New(false)

	responder := newTestNode(t, 2, localnet)
	initiator := newTestNode(t, 1, localnet)
	server, results := startResponder(t, ctx, responder, fileLogger, m)

	client := transport.NewClient(transport.ClientConfig{Logger: fileLogger, Metrics: m})
	conn, err := client.Connect(ctx, server.Addr().String())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s, err := session.New(session.Config{
		Node:    initiator,
		Conn:    conn,
		Receive: session.DefaultReceivePolicy(),
		Metrics: m,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	if err := s.Initiate(ctx, responder.PeerID(), 1); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if s.State() != session.StateReady {
		t.Fatalf("state = %s, want READY", s.State())
	}
	peer, ok := s.Peer()
	if !ok || !peer.Equal(responder.PeerID()) {
		t.Fatalf("peer = %v, want %v", peer, responder.PeerID())
	}

	for nonce := uint64(3); nonce <= 4; nonce++ {
		if _, err := s.Ping(ctx, nonce); err != nil {
			t.Fatalf("Ping(%d): %v", nonce, err)
		}
	}
	s.Close()

	select {
	case err := <-results:
		if err != nil {
			t.Errorf("responder: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("responder did not finish")
	}

	server.Stop()
	fileLogger.Close()

	// Both sides reached READY and two pongs were verified.
	reader, err := log.NewReader(logPath)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()

	ready := map[log.Role]bool{}
	verifiedPongs := 0
	for {
		e, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.StateChange != nil && e.StateChange.Entity == log.StateEntitySession && e.StateChange.NewState == "READY" {
			ready[e.LocalRole] = true
		}
		if e.Routed != nil && e.Routed.Body == "Pong" && e.Routed.Verified {
			verifiedPongs++
		}
	}
	if !ready[log.RoleInitiator] || !ready[log.RoleResponder] {
		t.Errorf("READY seen for %v, want both roles", ready)
	}
	if verifiedPongs != 2 {
		t.Errorf("verified pongs = %d, want 2", verifiedPongs)
	}

	series, err := testutil.GatherAndCount(m.Registry(), "near_handshake_handshake_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if series != 2 {
		t.Errorf("handshake series = %d, want 2 (one per role)", series)
	}
}

// TestE2E_GenesisMismatchOverTCP checks that a responder on another chain
// rejects the handshake and the initiator sees the connection end.
func TestE2E_GenesisMismatchOverTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	other := protocol.GenesisID{ChainID: "testnet", Hash: identity.Hash([]byte("testnet"))}
	responder := newTestNode(t, 2, other)
	initiator := newTestNode(t, 1, localnet)
	server, results := startResponder(t, ctx, responder, nil, nil)

	conn, err := transport.NewClient(transport.ClientConfig{}).Connect(ctx, server.Addr().String())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s, err := session.New(session.Config{Node: initiator, Conn: conn, Receive: session.DefaultReceivePolicy()})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer s.Close()

	if err := s.Initiate(ctx, responder.PeerID(), 1); err == nil {
		t.Fatal("Initiate succeeded against a node on another chain")
	}
	if s.State() == session.StateReady {
		t.Errorf("initiator reached READY")
	}

	select {
	case err := <-results:
		var rejected *node.RejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("responder error = %v, want RejectedError", err)
		}
		if rejected.Reason != node.ReasonGenesisMismatch {
			t.Errorf("reason = %s, want %s", rejected.Reason, node.ReasonGenesisMismatch)
		}
	case <-ctx.Done():
		t.Fatal("responder did not finish")
	}
}

// TestE2E_ConcurrentInitiators runs several initiators against one
// responder at the same time.
func TestE2E_ConcurrentInitiators(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	responder := newTestNode(t, 9, localnet)
	server, results := startResponder(t, ctx, responder, nil, nil)
	client := transport.NewClient(transport.ClientConfig{})

	const peers = 4
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < peers; i++ {
		initiator := newTestNode(t, byte(10+i), localnet)
		nonce := uint64(100 + i)
		g.Go(func() error {
			conn, err := client.Connect(gctx, server.Addr().String())
			if err != nil {
				return err
			}
			s, err := session.New(session.Config{Node: initiator, Conn: conn, Receive: session.DefaultReceivePolicy()})
			if err != nil {
				conn.Close()
				return err
			}
			defer s.Close()
			if err := s.Initiate(gctx, responder.PeerID(), nonce); err != nil {
				return err
			}
			_, err = s.Ping(gctx, nonce)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("initiator: %v", err)
	}

	for i := 0; i < peers; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Errorf("responder: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("responder did not finish")
		}
	}
}
