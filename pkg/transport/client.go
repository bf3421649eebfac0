package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
)

// DefaultConnectTimeout bounds a dial when the context has no deadline.
const DefaultConnectTimeout = 5 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// MaxMessageSize is the maximum message size (default: 16 MiB).
	MaxMessageSize uint32

	// ConnectTimeout is the connection timeout (default: 5s).
	ConnectTimeout time.Duration

	// WriteTimeout bounds each Send (0 = no timeout).
	WriteTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger

	// Metrics counts frames (optional).
	Metrics *metrics.Metrics
}

// Client dials peers.
type Client struct {
	config ClientConfig
	dialer net.Dialer
}

// NewClient creates a new client.
func NewClient(config ClientConfig) *Client {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	return &Client{config: config}
}

// Connect establishes a connection to address. The local side is the
// handshake initiator.
func (c *Client) Connect(ctx context.Context, address string) (*PeerConn, error) {
	// Apply timeout from config if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}

	return NewPeerConn(conn, ConnConfig{
		MaxMessageSize: c.config.MaxMessageSize,
		WriteTimeout:   c.config.WriteTimeout,
		Role:           log.RoleInitiator,
		Logger:         c.config.Logger,
		Metrics:        c.config.Metrics,
	}), nil
}
