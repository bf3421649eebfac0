package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByKind    map[wire.MessageKind]int
	RejectReasons     map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Role       log.Role
	PeerID     string
	FinalState string
	Pings      int
	Pongs      int
	FrameBytes int
}

// CollectStats reads the log file and aggregates it.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByKind:    make(map[wire.MessageKind]int),
		RejectReasons:     make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	// Track time range
	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	// Track connection stats
	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Role:      event.LocalRole,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.PeerID != "" && conn.PeerID == "" {
		conn.PeerID = event.PeerID
	}

	switch {
	case event.Frame != nil:
		conn.FrameBytes += event.Frame.Size
	case event.Message != nil:
		s.MessagesByKind[event.Message.Kind]++
	case event.StateChange != nil:
		if event.StateChange.Entity == log.StateEntitySession {
			conn.FinalState = event.StateChange.NewState
			if event.StateChange.Reason != "" && event.StateChange.NewState == "REJECTED" {
				s.RejectReasons[event.StateChange.Reason]++
			}
		}
	case event.Routed != nil:
		switch event.Routed.Body {
		case "Ping":
			conn.Pings++
		case "Pong":
			conn.Pongs++
		}
	case event.Error != nil:
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Handshake Protocol Log Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", formatDuration(stats.TimeRange.End.Sub(stats.TimeRange.Start)))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by layer
	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Events by category
	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryRouted, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Events by direction
	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByKind) > 0 {
		fmt.Fprintln(w, "Messages by Kind:")
		for _, k := range wire.AllKinds() {
			if count := stats.MessagesByKind[k]; count > 0 {
				fmt.Fprintf(w, "  %-20s %d\n", k.String()+":", count)
			}
		}
		if count := stats.MessagesByKind[wire.KindUnknown]; count > 0 {
			fmt.Fprintf(w, "  %-20s %d\n", "Unknown:", count)
		}
		fmt.Fprintln(w)
	}

	if len(stats.RejectReasons) > 0 {
		fmt.Fprintln(w, "Rejected Handshakes:")
		reasons := make([]string, 0, len(stats.RejectReasons))
		for r := range stats.RejectReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(w, "  %-24s %d\n", r+":", stats.RejectReasons[r])
		}
		fmt.Fprintln(w)
	}

	// Connections
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		// Sort by first seen time
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s, %d events, duration %s\n",
				shortenConnID(c.id), c.stats.Role, c.stats.Events, duration)
			if c.stats.PeerID != "" {
				fmt.Fprintf(w, "           Peer: %s\n", c.stats.PeerID)
			}
			if c.stats.FinalState != "" {
				fmt.Fprintf(w, "           State: %s\n", c.stats.FinalState)
			}
			if c.stats.Pings > 0 || c.stats.Pongs > 0 {
				fmt.Fprintf(w, "           Pings: %d, Pongs: %d\n", c.stats.Pings, c.stats.Pongs)
			}
			if c.stats.FrameBytes > 0 {
				fmt.Fprintf(w, "           Frame bytes: %d\n", c.stats.FrameBytes)
			}
		}
	}

	// Errors
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
