package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
)

// DefaultPort is the default listen port of a node.
const DefaultPort = 34567

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g., ":34567" or "127.0.0.1:0").
	Address string

	// MaxMessageSize is the maximum message size (default: 16 MiB).
	MaxMessageSize uint32

	// WriteTimeout bounds each Send (0 = no timeout).
	WriteTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger

	// Metrics counts frames (optional).
	Metrics *metrics.Metrics

	// Handler serves one accepted connection. The connection is closed
	// when Handler returns. ctx is cancelled when the server stops.
	Handler func(ctx context.Context, conn *PeerConn)

	// OnError is called when accepting fails (optional).
	OnError func(err error)
}

// Server accepts peer connections and serves each on its own goroutine.
type Server struct {
	config   ServerConfig
	listener net.Listener

	// Active connections
	conns   map[*PeerConn]struct{}
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("transport: server handler is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*PeerConn]struct{}),
	}, nil
}

// Start starts listening and accepting connections.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener. It returns immediately; the
// accept loop runs until Stop or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("transport: server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener

	// Stop accepting when the parent context ends.
	context.AfterFunc(s.ctx, func() { listener.Close() })

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops the server, closes all connections and waits for handlers.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(fmt.Errorf("transport: accept: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	pc := NewPeerConn(conn, ConnConfig{
		MaxMessageSize: s.config.MaxMessageSize,
		WriteTimeout:   s.config.WriteTimeout,
		Role:           log.RoleResponder,
		Logger:         s.config.Logger,
		Metrics:        s.config.Metrics,
	})

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		pc.Close()
		return
	}
	s.conns[pc] = struct{}{}
	s.connsMu.Unlock()

	defer func() {
		pc.Close()
		s.connsMu.Lock()
		delete(s.conns, pc)
		s.connsMu.Unlock()
	}()

	s.config.Handler(s.ctx, pc)
}
