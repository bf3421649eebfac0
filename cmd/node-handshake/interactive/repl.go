// Package interactive provides the interactive command-line interface
// for node-handshake.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/near-handshake/handshake-go/pkg/identity"
	"github.com/near-handshake/handshake-go/pkg/session"
)

// Pinger is the outbound session the console drives.
type Pinger interface {
	Ping(ctx context.Context, nonce uint64) (time.Duration, error)
	State() session.State
	Peer() (identity.PeerID, bool)
}

// Console handles interactive mode.
type Console struct {
	session   Pinger
	status    func(w io.Writer)
	nextNonce uint64
	rl        *readline.Instance
	out       io.Writer
}

// New creates a console. status writes the node status for the "status"
// command; firstNonce is used by the first "ping" without an argument.
func New(s Pinger, status func(w io.Writer), firstNonce uint64) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "handshake> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{
		session:   s,
		status:    status,
		nextNonce: firstNonce,
		rl:        rl,
		out:       rl.Stdout(),
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop. It returns when the user quits
// or ctx is cancelled; quitting calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	stop := context.AfterFunc(ctx, func() { c.rl.Close() })
	defer stop()

	c.printHelp()

	for {
		if ctx.Err() != nil {
			return
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			if ctx.Err() == nil {
				fmt.Fprintln(c.out, "Exiting...")
				cancel()
			}
			return
		}

		if !c.Execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false for quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "ping", "p":
		c.cmdPing(ctx, args)

	case "status", "s":
		c.cmdStatus()

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) cmdPing(ctx context.Context, args []string) {
	count := 1
	nonce := c.nextNonce
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(c.out, "Invalid nonce: %s\n", args[0])
			return
		}
		nonce = n
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			fmt.Fprintf(c.out, "Invalid count: %s\n", args[1])
			return
		}
		count = n
	}

	peer, _ := c.session.Peer()
	for i := 0; i < count; i++ {
		rtt, err := c.session.Ping(ctx, nonce)
		if err != nil {
			fmt.Fprintf(c.out, "Ping nonce=%d failed: %v\n", nonce, err)
			return
		}
		fmt.Fprintf(c.out, "Pong nonce=%d from %s in %s\n", nonce, peer.Short(), rtt.Round(time.Microsecond))
		nonce++
	}
	c.nextNonce = nonce
}

func (c *Console) cmdStatus() {
	peer, ok := c.session.Peer()
	fmt.Fprintf(c.out, "Session: %s\n", c.session.State())
	if ok {
		fmt.Fprintf(c.out, "Peer:    %s\n", peer)
	}
	fmt.Fprintf(c.out, "Next ping nonce: %d\n", c.nextNonce)
	if c.status != nil {
		c.status(c.out)
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  ping [nonce] [count] - Send signed pings and wait for the pongs
  status               - Show session and node status
  help                 - Show this help
  quit                 - Close the session and exit`)
}
