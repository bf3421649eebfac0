package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/near-handshake/handshake-go/pkg/config"
	"github.com/near-handshake/handshake-go/pkg/connection"
	"github.com/near-handshake/handshake-go/pkg/discovery"
	"github.com/near-handshake/handshake-go/pkg/identity"
	protolog "github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
	"github.com/near-handshake/handshake-go/pkg/node"
	"github.com/near-handshake/handshake-go/pkg/session"
	"github.com/near-handshake/handshake-go/pkg/transport"
)

// Runner drives the listener and the connector of one node.
type Runner struct {
	cfg     config.Config
	node    *node.Node
	logger  protolog.Logger
	metrics *metrics.Metrics
	out     *log.Logger

	// OnListening is called with the bound address once the listener runs.
	OnListening func(addr net.Addr)

	// OnConnected is called with the ready outbound session after the
	// configured pings. When set, the runner leaves the session open and
	// waits for ctx; otherwise the session is closed.
	OnConnected func(ctx context.Context, s *session.Session) error

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session *session.Session
	conn    transport.MessageConn
	started time.Time
}

// SessionInfo is a snapshot of an active session.
type SessionInfo struct {
	ConnID  string
	Role    protolog.Role
	Remote  string
	Peer    string
	State   session.State
	Started time.Time
}

// NewRunner creates a runner for cfg and n. out receives operational output.
func NewRunner(cfg config.Config, n *node.Node, logger protolog.Logger, m *metrics.Metrics, out *log.Logger) *Runner {
	if out == nil {
		out = log.New(io.Discard, "", 0)
	}
	return &Runner{
		cfg:      cfg,
		node:     n,
		logger:   protolog.OrNoop(logger),
		metrics:  m,
		out:      out,
		sessions: make(map[string]*sessionEntry),
	}
}

// Run starts the configured mode and blocks until ctx is cancelled or the
// connector finishes. In connect mode the connector's error is returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.cfg.MetricsAddress != "" {
		g.Go(func() error {
			r.out.Printf("Metrics on http://%s/metrics", r.cfg.MetricsAddress)
			return r.metrics.Serve(ctx, r.cfg.MetricsAddress)
		})
	}

	listening := make(chan struct{})
	if r.cfg.Mode.Listens() {
		g.Go(func() error { return r.Listen(ctx, listening) })
	} else {
		close(listening)
	}

	if r.cfg.Mode.Connects() {
		g.Go(func() error {
			select {
			case <-listening:
			case <-ctx.Done():
				return nil
			}
			err := r.Connect(ctx)
			if err != nil {
				return err
			}
			if !r.cfg.Mode.Listens() && r.cfg.MetricsAddress == "" {
				return nil
			}
			<-ctx.Done()
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Listen accepts connections and serves each as a responder until ctx is
// cancelled. listening is closed once the listener is bound.
func (r *Runner) Listen(ctx context.Context, listening chan<- struct{}) error {
	srv, err := transport.NewServer(transport.ServerConfig{
		Address:        r.cfg.ListenAddr(),
		MaxMessageSize: r.cfg.MaxMessageSize,
		Logger:         r.logger,
		Metrics:        r.metrics,
		Handler:        r.serveInbound,
		OnError: func(err error) {
			r.out.Printf("Accept error: %v", err)
		},
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	addr := srv.Addr()
	r.out.Printf("Listening on %s as %s", addr, r.node.PeerID())
	if r.OnListening != nil {
		r.OnListening(addr)
	}
	if listening != nil {
		close(listening)
	}

	if r.cfg.MDNS {
		adv, err := r.advertise(ctx, addr)
		if err != nil {
			r.out.Printf("Warning: mDNS advertisement failed: %v", err)
		} else {
			defer adv.Stop()
		}
	}

	<-ctx.Done()
	return nil
}

func (r *Runner) advertise(ctx context.Context, addr net.Addr) (*discovery.MDNSAdvertiser, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("not a TCP address: %s", addr)
	}
	policy := r.node.Policy()
	adv := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	err := adv.Advertise(ctx, &discovery.NodeInfo{
		PeerID:                 r.node.PeerID(),
		ChainID:                policy.ChainInfo.GenesisID.ChainID,
		ProtocolVersion:        policy.ProtocolVersion,
		OldestSupportedVersion: policy.OldestSupportedVersion,
		Port:                   uint16(tcp.Port),
	})
	if err != nil {
		return nil, err
	}
	r.out.Printf("Advertising %s on mDNS", discovery.ServiceType)
	return adv, nil
}

func (r *Runner) serveInbound(ctx context.Context, conn *transport.PeerConn) {
	s, err := r.newSession(conn)
	if err != nil {
		r.out.Printf("[%s] %v", conn.ConnID(), err)
		return
	}
	defer r.forget(conn.ConnID())
	defer s.Close()

	if err := s.Respond(ctx); err != nil {
		r.out.Printf("[%s] Handshake from %s failed: %v", conn.ConnID(), conn.RemoteAddr(), err)
		return
	}
	peer, _ := s.Peer()
	r.out.Printf("[%s] Handshake with %s complete", conn.ConnID(), peer)

	if err := s.Serve(ctx); err != nil && ctx.Err() == nil {
		r.out.Printf("[%s] Session with %s ended: %v", conn.ConnID(), peer, err)
	}
}

// Connect dials the target, completes the handshake and sends the
// configured pings.
func (r *Runner) Connect(ctx context.Context) error {
	target, err := r.resolveTarget(ctx)
	if err != nil {
		return err
	}

	client := transport.NewClient(transport.ClientConfig{
		MaxMessageSize: r.cfg.MaxMessageSize,
		ConnectTimeout: r.cfg.ConnectTimeout,
		Logger:         r.logger,
		Metrics:        r.metrics,
	})

	conn, err := connection.Retry(ctx, connection.RetryConfig{
		Attempts: r.cfg.DialAttempts,
		Backoff:  r.cfg.DialBackoff(),
		OnRetry: func(attempt int, delay time.Duration, err error) {
			r.out.Printf("Dial %s attempt %d failed: %v (retry in %s)", target.Addr(), attempt, err, delay)
		},
	}, func(ctx context.Context, _ int) (*transport.PeerConn, error) {
		return client.Connect(ctx, target.Addr())
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", target.Addr(), err)
	}

	s, err := r.newSession(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer r.forget(conn.ConnID())

	r.out.Printf("Connected to %s, sending handshake (nonce %d)", target.Addr(), r.cfg.HandshakeNonce)
	if err := s.Initiate(ctx, target.ID, r.cfg.HandshakeNonce); err != nil {
		s.Close()
		return fmt.Errorf("handshake with %s: %w", target.ID, err)
	}
	r.out.Printf("Handshake with %s complete", target.ID)

	for i := 0; i < r.cfg.PingCount; i++ {
		nonce := r.cfg.PingNonce + uint64(i)
		rtt, err := s.Ping(ctx, nonce)
		if err != nil {
			s.Close()
			return fmt.Errorf("ping %d: %w", nonce, err)
		}
		r.out.Printf("Pong nonce=%d from %s in %s", nonce, target.ID, rtt.Round(time.Microsecond))
	}

	if r.OnConnected == nil {
		return s.Close()
	}
	defer s.Close()
	return r.OnConnected(ctx, s)
}

// resolveTarget returns the configured target, looking up its address
// over mDNS when only a peer id was given.
func (r *Runner) resolveTarget(ctx context.Context) (identity.PeerInfo, error) {
	target, err := r.cfg.TargetPeer()
	if err != nil {
		return identity.PeerInfo{}, err
	}
	if target.Host != "" {
		return target, nil
	}

	cfg := discovery.DefaultBrowserConfig()
	cfg.ChainID = r.node.Policy().ChainInfo.GenesisID.ChainID
	browser := discovery.NewMDNSBrowser(cfg)
	defer browser.Stop()

	r.out.Printf("Looking up %s on mDNS", target.ID)
	svc, err := browser.Find(ctx, target.ID)
	if err != nil {
		return identity.PeerInfo{}, err
	}
	return svc.PeerInfo()
}

func (r *Runner) newSession(conn *transport.PeerConn) (*session.Session, error) {
	s, err := session.New(session.Config{
		Node:    r.node,
		Conn:    conn,
		Receive: r.cfg.ReceivePolicy(),
		Tier1:   r.cfg.Tier1,
		Metrics: r.metrics,
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[conn.ConnID()] = &sessionEntry{session: s, conn: conn, started: time.Now()}
	r.mu.Unlock()
	return s, nil
}

func (r *Runner) forget(connID string) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

// Sessions returns the active sessions ordered by start time.
func (r *Runner) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for id, e := range r.sessions {
		info := SessionInfo{
			ConnID:  id,
			Role:    e.conn.Role(),
			Remote:  e.conn.RemoteAddr().String(),
			State:   e.session.State(),
			Started: e.started,
		}
		if peer, ok := e.session.Peer(); ok {
			info.Peer = peer.String()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// PeerID returns the local peer id.
func (r *Runner) PeerID() identity.PeerID {
	return r.node.PeerID()
}
