// Command node-handshake performs the peer handshake and ping/pong exchange
// with another node.
//
// Usage:
//
//	node-handshake [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-mode string          connect, listen or both (default "connect")
//	-target string        Peer to connect to: ed25519:<base58>@host:port
//	-network string       Network preset: localnet, testnet, mainnet
//	-genesis-hash string  Genesis hash override (base58)
//	-listen string        Listen address (default "0.0.0.0")
//	-port int             Listen port (default 34567)
//	-key string           Node key file (generated when missing)
//	-pings int            Pings to send after the handshake (default 1)
//	-protocol-log string  Write protocol events to a CBOR log file
//	-metrics string       Serve Prometheus metrics on this address
//	-mdns                 Advertise (listen) or discover (connect) peers over mDNS
//	-interactive          Keep the session open and read commands
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Answer handshakes on the default port
//	node-handshake -mode listen -key node.json
//
//	# Handshake with a listener and ping it three times
//	node-handshake -target ed25519:DcA2...@127.0.0.1:34567 -pings 3
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/near-handshake/handshake-go/cmd/node-handshake/interactive"
	"github.com/near-handshake/handshake-go/pkg/config"
	"github.com/near-handshake/handshake-go/pkg/identity"
	protolog "github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/metrics"
	"github.com/near-handshake/handshake-go/pkg/node"
	"github.com/near-handshake/handshake-go/pkg/persistence"
	"github.com/near-handshake/handshake-go/pkg/session"
)

// Flags holds the command-line values. Only flags the user set override
// the configuration file.
type Flags struct {
	ConfigFile  string
	Mode        string
	Target      string
	Network     string
	GenesisHash string
	Listen      string
	Port        int
	Key         string
	Pings       int
	ProtocolLog string
	Metrics     string
	MDNS        bool
	Tier1       bool
	Interactive bool
	LogLevel    string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Mode, "mode", "connect", "connect, listen or both")
	flag.StringVar(&flags.Target, "target", "", "Peer to connect to: ed25519:<base58>@host:port")
	flag.StringVar(&flags.Network, "network", "localnet", "Network preset: localnet, testnet, mainnet")
	flag.StringVar(&flags.GenesisHash, "genesis-hash", "", "Genesis hash override (base58)")
	flag.StringVar(&flags.Listen, "listen", "0.0.0.0", "Listen address")
	flag.IntVar(&flags.Port, "port", 34567, "Listen port")
	flag.StringVar(&flags.Key, "key", "", "Node key file (generated when missing)")
	flag.IntVar(&flags.Pings, "pings", 1, "Pings to send after the handshake")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write protocol events to a CBOR log file")
	flag.StringVar(&flags.Metrics, "metrics", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.MDNS, "mdns", false, "Advertise (listen) or discover (connect) peers over mDNS")
	flag.BoolVar(&flags.Tier1, "tier1", false, "Send Tier1Handshake instead of Tier2Handshake")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Keep the session open and read commands")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	setupLogging(flags.LogLevel)

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := buildConfig(flags, set)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	id, err := loadIdentity(cfg.NodeKeyFile)
	if err != nil {
		log.Fatalf("Node key: %v", err)
	}

	policy, err := cfg.NodePolicy()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	n, err := node.New(node.Config{Identity: id, Policy: policy})
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}

	logger, closeLogger, err := setupProtocolLogger(cfg.ProtocolLog, flags.LogLevel)
	if err != nil {
		log.Fatalf("Protocol log: %v", err)
	}
	defer closeLogger()

	log.Println("NEAR Handshake Node")
	log.Println("===================")
	log.Printf("Peer ID: %s", n.PeerID())
	log.Printf("Chain:   %s (%s)", policy.ChainInfo.GenesisID.ChainID, policy.ChainInfo.GenesisID.Hash)
	log.Printf("Mode:    %s", cfg.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := NewRunner(cfg, n, logger, metrics.New(true), log.Default())

	if flags.Interactive && cfg.Mode.Connects() {
		runner.OnConnected = func(ctx context.Context, s *session.Session) error {
			console, err := interactive.New(s, func(w io.Writer) { printStatus(w, runner) }, cfg.PingNonce+uint64(cfg.PingCount))
			if err != nil {
				return err
			}
			// Redirect log output through readline to avoid interfering with input
			log.SetOutput(console.Stdout())
			defer log.SetOutput(os.Stderr)
			console.Run(ctx, cancel)
			return nil
		}
	}

	if err := runner.Run(ctx); err != nil {
		closeLogger()
		log.Fatalf("Error: %v", err)
	}
	log.Println("Goodbye!")
}

// buildConfig loads the configuration file, if any, and applies the flags
// the user set.
func buildConfig(f Flags, set map[string]bool) (config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		var err error
		cfg, err = config.Load(f.ConfigFile)
		if err != nil {
			return cfg, err
		}
	}

	if set["mode"] {
		cfg.Mode = config.Mode(f.Mode)
	}
	if set["target"] {
		cfg.Target = f.Target
	}
	if set["network"] {
		cfg.Network = f.Network
	}
	if set["genesis-hash"] {
		if cfg.Genesis == nil {
			cfg.Genesis = &config.Genesis{}
		}
		cfg.Genesis.Hash = f.GenesisHash
	}
	if set["listen"] {
		cfg.ListenAddress = f.Listen
	}
	if set["port"] {
		cfg.ListenPort = f.Port
	}
	if set["key"] {
		cfg.NodeKeyFile = f.Key
	}
	if set["pings"] {
		cfg.PingCount = f.Pings
	}
	if set["protocol-log"] {
		cfg.ProtocolLog = f.ProtocolLog
	}
	if set["metrics"] {
		cfg.MetricsAddress = f.Metrics
	}
	if set["mdns"] {
		cfg.MDNS = f.MDNS
	}
	if set["tier1"] {
		cfg.Tier1 = f.Tier1
	}

	return cfg, cfg.Validate()
}

// loadIdentity reads the key file, creating it on first use. Without a key
// file the node runs with an ephemeral identity.
func loadIdentity(path string) (*identity.Identity, error) {
	if path == "" {
		return identity.Generate(nil)
	}
	id, created, err := persistence.LoadOrGenerate(path, nil)
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("Generated new node key in %s", path)
	}
	return id, nil
}

// setupProtocolLogger fans protocol events out to the log file and, at
// debug level, to slog on stderr.
func setupProtocolLogger(path, level string) (protolog.Logger, func(), error) {
	var loggers []protolog.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := protolog.NewFileLogger(path)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				log.Printf("Error closing protocol log: %v", err)
			}
		}
		log.Printf("Protocol log: %s", path)
	}

	if level == "debug" {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, protolog.NewSlogAdapter(slog.New(h)))
	}

	if len(loggers) == 0 {
		return nil, closeFn, nil
	}
	return protolog.NewMultiLogger(loggers...), closeFn, nil
}

func printStatus(w io.Writer, r *Runner) {
	fmt.Fprintf(w, "Local:   %s\n", r.PeerID())
	sessions := r.Sessions()
	fmt.Fprintf(w, "Sessions: %d\n", len(sessions))
	for _, s := range sessions {
		peer := s.Peer
		if peer == "" {
			peer = "-"
		}
		id := s.ConnID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "  %s %-9s %-18s %-21s %s\n", id, s.Role, s.State, s.Remote, peer)
	}
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}
