// Package config loads and validates node configuration.
//
// Values come from Default, then an optional YAML file, then command-line
// flags applied by the caller. Validate runs last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/near-handshake/handshake-go/pkg/connection"
	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/node"
	"github.com/near-handshake/handshake-go/pkg/protocol"
	"github.com/near-handshake/handshake-go/pkg/session"
	"github.com/near-handshake/handshake-go/pkg/transport"
	"github.com/near-handshake/handshake-go/pkg/version"
)

// Mode selects which roles the node plays.
type Mode string

const (
	// ModeConnect dials the target and initiates the handshake.
	ModeConnect Mode = "connect"

	// ModeListen accepts connections and responds to handshakes.
	ModeListen Mode = "listen"

	// ModeBoth listens and connects at the same time.
	ModeBoth Mode = "both"
)

// Connects reports whether the mode dials a target.
func (m Mode) Connects() bool { return m == ModeConnect || m == ModeBoth }

// Listens reports whether the mode accepts connections.
func (m Mode) Listens() bool { return m == ModeListen || m == ModeBoth }

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Genesis overrides or completes a network preset.
type Genesis struct {
	ChainID string `yaml:"chain_id"`
	Hash    string `yaml:"hash"`
}

// Config is the node configuration.
type Config struct {
	Mode    Mode     `yaml:"mode"`
	Network string   `yaml:"network"`
	Genesis *Genesis `yaml:"genesis,omitempty"`

	ProtocolVersion        uint32 `yaml:"protocol_version"`
	OldestSupportedVersion uint32 `yaml:"oldest_supported_version"`
	MinAcceptedVersion     uint32 `yaml:"min_accepted_version,omitempty"`
	OldestVersionPolicy    string `yaml:"oldest_version_policy"`
	Tier1                  bool   `yaml:"tier1,omitempty"`

	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`

	Target         string        `yaml:"target"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	ReceiveRetries int           `yaml:"receive_retries"`
	DialAttempts   int           `yaml:"dial_attempts"`

	// Delay after the first failed dial, doubling up to DialBackoffMax.
	DialBackoffInitial time.Duration `yaml:"dial_backoff_initial"`
	DialBackoffMax     time.Duration `yaml:"dial_backoff_max"`

	HandshakeNonce uint64 `yaml:"handshake_nonce"`
	PingNonce      uint64 `yaml:"ping_nonce"`
	PingCount      int    `yaml:"ping_count"`

	NodeKeyFile    string `yaml:"node_key_file"`
	ProtocolLog    string `yaml:"protocol_log"`
	MetricsAddress string `yaml:"metrics_address"`
	MDNS           bool   `yaml:"mdns"`
	MaxMessageSize uint32 `yaml:"max_message_size"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Mode:                   ModeConnect,
		Network:                "localnet",
		ProtocolVersion:        version.ProtocolVersion,
		OldestSupportedVersion: version.OldestSupportedVersion,
		OldestVersionPolicy:    version.RejectOlder.String(),
		ListenAddress:          "0.0.0.0",
		ListenPort:             transport.DefaultPort,
		ConnectTimeout:         transport.DefaultConnectTimeout,
		ReceiveRetries:         session.DefaultReceivePolicy().MaxRetries,
		DialAttempts:           1,
		DialBackoffInitial:     connection.DefaultInitialBackoff,
		DialBackoffMax:         connection.DefaultMaxBackoff,
		HandshakeNonce:         1,
		PingNonce:              3,
		PingCount:              1,
		MaxMessageSize:         transport.DefaultMaxMessageSize,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeConnect, ModeListen, ModeBoth:
	default:
		return fmt.Errorf("%w: mode %q: expected connect, listen or both", ErrInvalid, c.Mode)
	}
	if c.Mode.Connects() {
		if c.Target == "" {
			return fmt.Errorf("%w: target is required in %s mode", ErrInvalid, c.Mode)
		}
		if _, err := c.TargetPeer(); err != nil {
			return fmt.Errorf("%w: target: %w", ErrInvalid, err)
		}
	}
	if c.Mode.Listens() && (c.ListenPort < 0 || c.ListenPort > 65535) {
		return fmt.Errorf("%w: listen_port %d out of range", ErrInvalid, c.ListenPort)
	}
	if err := (version.Range{Oldest: c.OldestSupportedVersion, Current: c.ProtocolVersion}).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := version.ParseOldestPolicy(c.OldestVersionPolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.GenesisID(); err != nil {
		return err
	}
	if c.ReceiveRetries < 0 {
		return fmt.Errorf("%w: receive_retries must not be negative", ErrInvalid)
	}
	if c.DialAttempts < 1 {
		return fmt.Errorf("%w: dial_attempts must be at least 1", ErrInvalid)
	}
	if err := c.DialBackoff().Validate(); err != nil {
		return fmt.Errorf("%w: dial_backoff: %w", ErrInvalid, err)
	}
	if c.PingCount < 0 {
		return fmt.Errorf("%w: ping_count must not be negative", ErrInvalid)
	}
	if c.ConnectTimeout < 0 || c.ReadTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalid)
	}
	if c.MaxMessageSize == 0 {
		return fmt.Errorf("%w: max_message_size must be positive", ErrInvalid)
	}
	return nil
}

// GenesisID resolves the network preset and any genesis override.
func (c Config) GenesisID() (protocol.GenesisID, error) {
	chainID, hash := "", ""
	if c.Network != "" {
		n, err := LookupNetwork(c.Network)
		if err != nil {
			return protocol.GenesisID{}, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		chainID, hash = n.ChainID, n.GenesisHash
	}
	if c.Genesis != nil {
		if c.Genesis.ChainID != "" {
			chainID = c.Genesis.ChainID
		}
		if c.Genesis.Hash != "" {
			hash = c.Genesis.Hash
		}
	}
	if chainID == "" {
		return protocol.GenesisID{}, fmt.Errorf("%w: no network or genesis.chain_id", ErrInvalid)
	}
	if hash == "" {
		return protocol.GenesisID{}, fmt.Errorf("%w: network %s needs genesis.hash", ErrInvalid, chainID)
	}
	h, err := identity.ParseCryptoHash(hash)
	if err != nil {
		return protocol.GenesisID{}, fmt.Errorf("%w: genesis hash: %w", ErrInvalid, err)
	}
	return protocol.GenesisID{ChainID: chainID, Hash: h}, nil
}

// TargetPeer parses the target peer info. With mdns enabled the target may
// be a bare peer id; the returned info then has no host and port.
func (c Config) TargetPeer() (identity.PeerInfo, error) {
	if c.MDNS && !strings.Contains(c.Target, "@") {
		id, err := identity.ParsePeerID(strings.TrimSpace(c.Target))
		if err != nil {
			return identity.PeerInfo{}, fmt.Errorf("%w: %v", identity.ErrInvalidPeerInfo, err)
		}
		return identity.PeerInfo{ID: id}, nil
	}
	return identity.ParsePeerInfo(c.Target)
}

// ListenAddr returns host:port for the listener.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

// NodePolicy builds the handshake policy. The listen port is announced
// only when the node listens.
func (c Config) NodePolicy() (node.Policy, error) {
	genesis, err := c.GenesisID()
	if err != nil {
		return node.Policy{}, err
	}
	oldest, err := version.ParseOldestPolicy(c.OldestVersionPolicy)
	if err != nil {
		return node.Policy{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	p := node.DefaultPolicy(genesis)
	p.ProtocolVersion = c.ProtocolVersion
	p.OldestSupportedVersion = c.OldestSupportedVersion
	p.MinAcceptedVersion = c.MinAcceptedVersion
	p.OldestPolicy = oldest
	if c.Mode.Listens() && c.ListenPort > 0 {
		port := uint16(c.ListenPort)
		p.ListenPort = &port
	}
	return p, nil
}

// DialBackoff returns the delay schedule between dial attempts.
func (c Config) DialBackoff() connection.Backoff {
	b := connection.DefaultBackoff()
	b.Initial = c.DialBackoffInitial
	b.Max = c.DialBackoffMax
	return b
}

// ReceivePolicy returns the session receive policy.
func (c Config) ReceivePolicy() session.ReceivePolicy {
	return session.ReceivePolicy{MaxRetries: c.ReceiveRetries, Timeout: c.ReadTimeout}
}
