package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/protocol"
)

func startEchoServer(t *testing.T, logger log.Logger) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Logger:  logger,
		Handler: func(ctx context.Context, conn *PeerConn) {
			for {
				m, err := conn.Receive(0)
				if err != nil {
					return
				}
				if err := conn.Send(m); err != nil {
					return
				}
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestServerEcho(t *testing.T) {
	a := testNode(t, 1)
	b := testNode(t, 2)
	srv := startEchoServer(t, nil)

	client := NewClient(ClientConfig{ConnectTimeout: time.Second})
	conn, err := client.Connect(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, log.RoleInitiator, conn.Role())

	ping, err := a.CreatePing(b.PeerID(), 7)
	require.NoError(t, err)
	require.NoError(t, conn.Send(ping))

	got, err := conn.Receive(time.Second)
	require.NoError(t, err)
	routed, ok := got.(*protocol.Routed)
	require.True(t, ok)
	assert.True(t, routed.Msg.Verify())
	assert.Equal(t, protocol.Ping{Nonce: 7, Source: a.PeerID()}, routed.Msg.Body)
}

func TestServerConcurrentConnections(t *testing.T) {
	a := testNode(t, 1)
	b := testNode(t, 2)
	srv := startEchoServer(t, nil)
	client := NewClient(ClientConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(nonce uint64) {
			defer wg.Done()
			conn, err := client.Connect(context.Background(), srv.Addr().String())
			if err != nil {
				t.Errorf("connect: %v", err)
				return
			}
			defer conn.Close()

			h := a.CreateHandshake(b.PeerID(), nonce)
			if err := conn.Send(&protocol.Tier2Handshake{Handshake: *h}); err != nil {
				t.Errorf("send: %v", err)
				return
			}
			got, err := conn.Receive(2 * time.Second)
			if err != nil {
				t.Errorf("receive: %v", err)
				return
			}
			hs, ok := protocol.HandshakeOf(got)
			if !ok || hs.PartialEdgeInfo.Nonce != nonce {
				t.Errorf("echo mismatch for nonce %d", nonce)
			}
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestServerStopClosesConnections(t *testing.T) {
	srv := startEchoServer(t, nil)

	conn, err := NewClient(ClientConfig{}).Connect(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Stop())
	assert.Equal(t, 0, srv.ConnectionCount())

	_, err = conn.Receive(time.Second)
	assert.Error(t, err, "server side closed")

	assert.NoError(t, srv.Stop(), "second Stop")
}

func TestServerContextCancelStopsAccepting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Handler: func(ctx context.Context, conn *PeerConn) { <-ctx.Done() },
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop()

	addr := srv.Addr().String()
	cancel()

	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return true
		}
		c.Close()
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerLogsResponderRole(t *testing.T) {
	logger := &capturingLogger{}
	srv := startEchoServer(t, logger)

	conn, err := NewClient(ClientConfig{}).Connect(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	conn.Close()

	require.Eventually(t, func() bool {
		for _, e := range logger.Events() {
			if e.StateChange != nil && e.StateChange.NewState == "CONNECTED" && e.LocalRole == log.RoleResponder {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestServerStartTwice(t *testing.T) {
	srv := startEchoServer(t, nil)
	assert.Error(t, srv.Start(context.Background()))
}
