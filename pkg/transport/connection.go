package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
	"github.com/near-handshake/handshake-go/pkg/protocol"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnConfig configures a PeerConn.
type ConnConfig struct {
	// MaxMessageSize caps the declared frame length (default: 16 MiB).
	MaxMessageSize uint32

	// WriteTimeout bounds each Send (0 = no timeout).
	WriteTimeout time.Duration

	// Role is the local side of the handshake on this connection.
	Role log.Role

	// ConnID identifies the connection in logs (default: random UUID).
	ConnID string

	// Logger receives protocol events (optional).
	Logger log.Logger

	// Metrics counts frames (optional).
	Metrics *metrics.Metrics
}

// PeerConn sends and receives PeerMessages over one stream connection.
// Send and Receive may be called from different goroutines.
type PeerConn struct {
	conn   net.Conn
	framer *Framer
	config ConnConfig
	logger log.Logger

	peerMu sync.RWMutex
	peerID string

	closeCh   chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewPeerConn wraps an established stream connection.
func NewPeerConn(conn net.Conn, config ConnConfig) *PeerConn {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnID == "" {
		config.ConnID = uuid.New().String()
	}

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	framer := NewFramerWithMaxSize(rw, config.MaxMessageSize)
	framer.SetLogger(config.Logger, config.ConnID)
	framer.setRole(config.Role)
	framer.SetMetrics(config.Metrics)

	c := &PeerConn{
		conn:    conn,
		framer:  framer,
		config:  config,
		logger:  config.Logger,
		closeCh: make(chan struct{}),
	}
	c.logState("", "CONNECTED", "")
	return c
}

// ConnID returns the unique connection identifier.
func (c *PeerConn) ConnID() string {
	return c.config.ConnID
}

// Role returns the local role on this connection.
func (c *PeerConn) Role() log.Role {
	return c.config.Role
}

// LocalAddr returns the local network address.
func (c *PeerConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *PeerConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetPeerID records the remote peer id for subsequent log events.
func (c *PeerConn) SetPeerID(id string) {
	c.peerMu.Lock()
	c.peerID = id
	c.peerMu.Unlock()
}

// PeerID returns the remote peer id recorded by SetPeerID.
func (c *PeerConn) PeerID() string {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.peerID
}

// Logger returns the protocol logger of this connection, never nil.
func (c *PeerConn) Logger() log.Logger {
	return log.OrNoop(c.logger)
}

// Send encodes m and writes it as one frame.
func (c *PeerConn) Send(m protocol.PeerMessage) error {
	data, err := protocol.Marshal(m)
	if err != nil {
		c.logError(log.LayerWire, "encode", "send "+m.Kind().String(), err)
		return fmt.Errorf("transport: encode %s: %w", m.Kind(), err)
	}
	if err := c.SendRaw(data); err != nil {
		return err
	}
	c.logMessage(log.DirectionOut, m.Kind(), m)
	return nil
}

// SendRaw writes data as one frame without encoding it.
func (c *PeerConn) SendRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if c.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	if err := c.framer.WriteFrame(data); err != nil {
		c.logError(log.LayerTransport, errorClass(err), "send", err)
		return err
	}
	return nil
}

// Receive reads and decodes the next frame, waiting at most timeout
// (0 = no timeout).
//
// Errors wrapping protocol.ErrDecode leave the stream aligned on the next
// frame, so the caller may keep reading. Any other error means the
// connection is unusable.
func (c *PeerConn) Receive(timeout time.Duration) (protocol.PeerMessage, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	data, err := c.framer.ReadFrame()
	if err != nil {
		select {
		case <-c.closeCh:
			return nil, ErrConnectionClosed
		default:
		}
		if err != io.EOF {
			c.logError(log.LayerTransport, errorClass(err), "receive", err)
		}
		return nil, err
	}

	m, kind, err := protocol.Unmarshal(data)
	if err != nil {
		c.logError(log.LayerWire, errorClass(err), "receive "+kind.String(), err)
		return nil, err
	}
	c.logMessage(log.DirectionIn, kind, m)
	return m, nil
}

// Close closes the connection. Blocked Send and Receive calls return.
func (c *PeerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		c.logState("CONNECTED", "CLOSED", "")
	})
	return err
}

// Done is closed once Close has been called.
func (c *PeerConn) Done() <-chan struct{} {
	return c.closeCh
}

func (c *PeerConn) baseEvent(direction log.Direction, layer log.Layer, category log.Category) log.Event {
	e := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.config.ConnID,
		Direction:    direction,
		Layer:        layer,
		Category:     category,
		LocalRole:    c.config.Role,
		PeerID:       c.PeerID(),
	}
	if addr := c.conn.RemoteAddr(); addr != nil {
		e.RemoteAddr = addr.String()
	}
	return e
}

func (c *PeerConn) logMessage(direction log.Direction, kind wire.MessageKind, m protocol.PeerMessage) {
	if c.logger == nil {
		return
	}
	e := c.baseEvent(direction, log.LayerWire, log.CategoryMessage)
	e.Message = MessageEvent(kind, m)
	c.logger.Log(e)
}

func (c *PeerConn) logState(oldState, newState, reason string) {
	if c.logger == nil {
		return
	}
	e := c.baseEvent(log.DirectionIn, log.LayerTransport, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	c.logger.Log(e)
}

func (c *PeerConn) logError(layer log.Layer, class, context string, err error) {
	if c.logger == nil {
		return
	}
	e := c.baseEvent(log.DirectionIn, layer, log.CategoryError)
	e.Error = &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Class:   class,
		Context: context,
	}
	c.logger.Log(e)
}

// MessageEvent describes m for the protocol log. Handshake fields are
// filled for handshake kinds.
func MessageEvent(kind wire.MessageKind, m protocol.PeerMessage) *log.MessageEvent {
	ev := &log.MessageEvent{Kind: kind}
	h, ok := protocol.HandshakeOf(m)
	if !ok {
		return ev
	}
	pv := h.ProtocolVersion
	oldest := h.OldestSupportedVersion
	nonce := h.PartialEdgeInfo.Nonce
	ev.ProtocolVersion = &pv
	ev.OldestSupportedVersion = &oldest
	ev.SenderPeerID = h.SenderPeerID.String()
	ev.TargetPeerID = h.TargetPeerID.String()
	ev.EdgeNonce = &nonce
	if h.SenderListenPort != nil {
		port := *h.SenderListenPort
		ev.ListenPort = &port
	}
	ev.ChainID = h.SenderChainInfo.GenesisID.ChainID
	ev.GenesisHash = h.SenderChainInfo.GenesisID.Hash.String()
	return ev
}

// errorClass groups err for log events.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrFrameTruncated), errors.Is(err, ErrMessageTooLarge), errors.Is(err, ErrMessageEmpty):
		return "framing"
	case errors.Is(err, protocol.ErrDecode):
		return "decode"
	default:
		return "io"
	}
}
