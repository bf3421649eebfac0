// Package commands implements the handshake-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

// timeLayout is used for every timestamp the commands print.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Kind      *wire.MessageKind
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		Kind:      f.Kind,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timeLayout)
	connID := shortenConnID(event.ConnectionID)

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s %s\n",
		ts, connID, event.Direction, event.LocalRole, event.Layer, eventLabel(event))
	if event.PeerID != "" {
		fmt.Fprintf(w, "  Peer: %s\n", event.PeerID)
	}

	// Type-specific details
	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Routed != nil:
		formatRoutedDetails(w, event.Routed)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// eventLabel names the payload of an event.
func eventLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Kind.String()
	case event.StateChange != nil:
		return "State"
	case event.Routed != nil:
		return event.Routed.Body
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatFrameDetails writes frame-specific details.
func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// formatMessageDetails writes handshake fields of a wire message.
func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	if msg.ProtocolVersion != nil {
		fmt.Fprintf(w, "  Version: %d", *msg.ProtocolVersion)
		if msg.OldestSupportedVersion != nil {
			fmt.Fprintf(w, " (oldest %d)", *msg.OldestSupportedVersion)
		}
		fmt.Fprintln(w)
	}
	if msg.SenderPeerID != "" {
		fmt.Fprintf(w, "  Sender: %s\n", msg.SenderPeerID)
	}
	if msg.TargetPeerID != "" {
		fmt.Fprintf(w, "  Target: %s\n", msg.TargetPeerID)
	}
	if msg.ChainID != "" {
		fmt.Fprintf(w, "  Chain: %s", msg.ChainID)
		if msg.GenesisHash != "" {
			fmt.Fprintf(w, " genesis %s", msg.GenesisHash)
		}
		fmt.Fprintln(w)
	}
	if msg.EdgeNonce != nil {
		fmt.Fprintf(w, "  Edge nonce: %d\n", *msg.EdgeNonce)
	}
	if msg.ListenPort != nil {
		fmt.Fprintf(w, "  Listen port: %d\n", *msg.ListenPort)
	}
}

// formatStateChangeDetails writes state change details.
func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatRoutedDetails writes ping/pong details.
func formatRoutedDetails(w io.Writer, r *log.RoutedEvent) {
	if r.Nonce != nil {
		fmt.Fprintf(w, "  Nonce: %d\n", *r.Nonce)
	}
	if r.Author != "" {
		fmt.Fprintf(w, "  Author: %s\n", r.Author)
	}
	if r.Target != "" {
		fmt.Fprintf(w, "  Target: %s\n", r.Target)
	}
	if r.TTL != 0 {
		fmt.Fprintf(w, "  TTL: %d\n", r.TTL)
	}
	if r.CreatedAt != nil {
		fmt.Fprintf(w, "  Created: %s\n", r.CreatedAt.UTC().Format(timeLayout))
	}
	if r.Verified {
		fmt.Fprintln(w, "  Signature: verified")
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Class != "" {
		fmt.Fprintf(w, "  Class: %s\n", err.Class)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "session":
		return log.LayerSession, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or session)", s)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "routed":
		return log.CategoryRouted, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, routed, state, or error)", s)
	}
}

// ParseRoleFlag parses a role string from command-line flag (case-insensitive).
func ParseRoleFlag(s string) (log.Role, error) {
	switch strings.ToLower(s) {
	case "initiator":
		return log.RoleInitiator, nil
	case "responder":
		return log.RoleResponder, nil
	default:
		return 0, fmt.Errorf("invalid role: %s (must be initiator or responder)", s)
	}
}

// ParseKindFlag parses a message kind name such as Tier2Handshake.
func ParseKindFlag(s string) (wire.MessageKind, error) {
	for _, k := range wire.AllKinds() {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return wire.ParseMessageKind(s)
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}

	return nil
}
