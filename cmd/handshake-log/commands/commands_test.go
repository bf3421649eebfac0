package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/near-handshake/handshake-go/pkg/log"
	"github.com/near-handshake/handshake-go/pkg/wire"
)

const testConn = "abc12345-6789-0123-4567-890abcdef012"

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hslog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func u32(v uint32) *uint32 { return &v }
func u64(v uint64) *uint64 { return &v }

// sessionEvents is the protocol log of one initiator run: a frame, the
// handshake, the state changes and a ping/pong.
func sessionEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	at := func(ms int) time.Time { return ts.Add(time.Duration(ms) * time.Millisecond) }
	base := func(ms int, dir log.Direction, layer log.Layer, cat log.Category) log.Event {
		return log.Event{
			Timestamp:    at(ms),
			ConnectionID: testConn,
			Direction:    dir,
			Layer:        layer,
			Category:     cat,
			LocalRole:    log.RoleInitiator,
			ChainID:      "localnet",
		}
	}

	frame := base(0, log.DirectionOut, log.LayerTransport, log.CategoryMessage)
	frame.Frame = &log.FrameEvent{Size: 128, Data: []byte{0x80, 0x00, 0x00, 0x00}}

	hs := base(1, log.DirectionOut, log.LayerWire, log.CategoryMessage)
	hs.Message = &log.MessageEvent{
		Kind:                   wire.KindTier2Handshake,
		ProtocolVersion:        u32(63),
		OldestSupportedVersion: u32(61),
		SenderPeerID:           "ed25519:sender",
		TargetPeerID:           "ed25519:target",
		EdgeNonce:              u64(1),
		ChainID:                "localnet",
		GenesisHash:            "GyGacsMkHfq1n1HQ3mHF4xXqAMTDR183FnckCaZ2r5yL",
	}

	sent := base(2, log.DirectionOut, log.LayerSession, log.CategoryState)
	sent.StateChange = &log.StateChangeEvent{Entity: log.StateEntitySession, OldState: "IDLE", NewState: "HANDSHAKE_SENT"}

	ready := base(5, log.DirectionIn, log.LayerSession, log.CategoryState)
	ready.PeerID = "ed25519:target"
	ready.StateChange = &log.StateChangeEvent{Entity: log.StateEntitySession, OldState: "HANDSHAKE_VERIFIED", NewState: "READY"}

	ping := base(6, log.DirectionOut, log.LayerSession, log.CategoryRouted)
	ping.PeerID = "ed25519:target"
	ping.Routed = &log.RoutedEvent{Body: "Ping", Nonce: u64(3), Author: "ed25519:sender", Target: "ed25519:target", TTL: 100}

	pong := base(8, log.DirectionIn, log.LayerSession, log.CategoryRouted)
	pong.PeerID = "ed25519:target"
	pong.Routed = &log.RoutedEvent{Body: "Pong", Nonce: u64(3), Verified: true}

	return []log.Event{frame, hs, sent, ready, ping, pong}
}

func rejectedEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 11, 0, 0, 0, time.UTC)
	rejected := log.Event{
		Timestamp:    ts,
		ConnectionID: "ffff0000-1111-2222-3333-444455556666",
		Direction:    log.DirectionIn,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		LocalRole:    log.RoleResponder,
		StateChange:  &log.StateChangeEvent{Entity: log.StateEntitySession, OldState: "IDLE", NewState: "REJECTED", Reason: "genesis-mismatch"},
	}
	decodeErr := log.Event{
		Timestamp:    ts.Add(time.Millisecond),
		ConnectionID: rejected.ConnectionID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    log.RoleResponder,
		Error:        &log.ErrorEventData{Layer: log.LayerWire, Message: "unsupported kind", Class: "decode", Context: "receive"},
	}
	return []log.Event{rejected, decodeErr}
}

func TestFormatEvents(t *testing.T) {
	var buf bytes.Buffer
	for _, e := range append(sessionEvents(), rejectedEvents()...) {
		formatEvent(&buf, e)
	}
	output := buf.String()

	wants := []string{
		"2026-01-28T10:15:32.123456Z [conn:abc12345] OUT INITIATOR TRANSPORT Frame",
		"Size: 128 bytes",
		"Data: 80000000",
		"WIRE Tier2Handshake",
		"Version: 63 (oldest 61)",
		"Target: ed25519:target",
		"Chain: localnet genesis GyGacsMkHfq1n1HQ3mHF4xXqAMTDR183FnckCaZ2r5yL",
		"Edge nonce: 1",
		"IDLE -> HANDSHAKE_SENT",
		"Peer: ed25519:target",
		"SESSION Ping",
		"Nonce: 3",
		"TTL: 100",
		"Signature: verified",
		"RESPONDER SESSION State",
		"Reason: genesis-mismatch",
		"Class: decode",
		"Context: receive",
	}
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}
}

func TestShortenConnID(t *testing.T) {
	tests := []struct{ in, want string }{
		{testConn, "abc12345"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortenConnID(tt.in); got != tt.want {
			t.Errorf("shortenConnID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "500.000us"},
		{1500 * time.Microsecond, "1.500ms"},
		{2 * time.Second, "2.000s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("Session"); err != nil || l != log.LayerSession {
		t.Errorf("ParseLayerFlag(Session) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("service"); err == nil {
		t.Error("ParseLayerFlag(service) should fail")
	}
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if c, err := ParseCategoryFlag("routed"); err != nil || c != log.CategoryRouted {
		t.Errorf("ParseCategoryFlag(routed) = %v, %v", c, err)
	}
	if r, err := ParseRoleFlag("responder"); err != nil || r != log.RoleResponder {
		t.Errorf("ParseRoleFlag(responder) = %v, %v", r, err)
	}
	if k, err := ParseKindFlag("tier2handshake"); err != nil || k != wire.KindTier2Handshake {
		t.Errorf("ParseKindFlag(tier2handshake) = %v, %v", k, err)
	}
	if _, err := ParseKindFlag("Gossip"); err == nil {
		t.Error("ParseKindFlag(Gossip) should fail")
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, append(sessionEvents(), rejectedEvents()...))

	t.Run("All", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RunView(path, ViewFilter{}, &buf); err != nil {
			t.Fatalf("RunView failed: %v", err)
		}
		if got := strings.Count(buf.String(), "[conn:"); got != 8 {
			t.Errorf("viewed %d events, want 8", got)
		}
	})

	t.Run("KindFilter", func(t *testing.T) {
		k := wire.KindTier2Handshake
		var buf bytes.Buffer
		if err := RunView(path, ViewFilter{Kind: &k}, &buf); err != nil {
			t.Fatalf("RunView failed: %v", err)
		}
		if got := strings.Count(buf.String(), "[conn:"); got != 1 {
			t.Errorf("viewed %d events, want 1:\n%s", got, buf.String())
		}
	})

	t.Run("CategoryAndDirection", func(t *testing.T) {
		c := log.CategoryRouted
		d := log.DirectionIn
		var buf bytes.Buffer
		if err := RunView(path, ViewFilter{Category: &c, Direction: &d}, &buf); err != nil {
			t.Fatalf("RunView failed: %v", err)
		}
		if !strings.Contains(buf.String(), "Pong") || strings.Contains(buf.String(), "SESSION Ping") {
			t.Errorf("unexpected output:\n%s", buf.String())
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		err := RunView(filepath.Join(t.TempDir(), "none.hslog"), ViewFilter{}, &bytes.Buffer{})
		if err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, append(sessionEvents(), rejectedEvents()...))

	tests := []struct {
		name string
		opts FilterOptions
		want int
	}{
		{"Connection", FilterOptions{ConnID: testConn}, 6},
		{"Role", FilterOptions{Role: "responder"}, 2},
		{"Peer", FilterOptions{PeerID: "ed25519:target"}, 3},
		{"Kind", FilterOptions{Kind: "Tier2Handshake"}, 1},
		{"Layer", FilterOptions{Layer: "session"}, 5},
		{"Window", FilterOptions{TimeStart: "2026-01-28T10:30:00Z", TimeEnd: "2026-01-28T12:00:00Z"}, 2},
		{"Everything", FilterOptions{}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Output = filepath.Join(t.TempDir(), "out.hslog")
			n, err := RunFilter(path, tt.opts)
			if err != nil {
				t.Fatalf("RunFilter failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("RunFilter wrote %d events, want %d", n, tt.want)
			}

			stats, err := CollectStats(tt.opts.Output)
			if err != nil {
				t.Fatalf("CollectStats on output failed: %v", err)
			}
			if stats.TotalEvents != tt.want {
				t.Errorf("output has %d events, want %d", stats.TotalEvents, tt.want)
			}
		})
	}
}

func TestRunFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.hslog")

	bad := []FilterOptions{
		{Output: out, TimeStart: "yesterday"},
		{Output: out, TimeEnd: "tomorrow"},
		{Output: out, Layer: "physical"},
		{Output: out, Direction: "sideways"},
		{Output: out, Category: "control"},
		{Output: out, Role: "observer"},
		{Output: out, Kind: "Nope"},
	}
	for _, opts := range bad {
		if _, err := RunFilter(path, opts); err == nil {
			t.Errorf("RunFilter(%+v) should fail", opts)
		}
	}
}

func TestCollectStats(t *testing.T) {
	path := createTestLogFile(t, append(sessionEvents(), rejectedEvents()...))

	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}

	if stats.TotalEvents != 8 {
		t.Errorf("TotalEvents = %d, want 8", stats.TotalEvents)
	}
	if stats.EventsByLayer[log.LayerSession] != 5 {
		t.Errorf("session layer events = %d, want 5", stats.EventsByLayer[log.LayerSession])
	}
	if stats.MessagesByKind[wire.KindTier2Handshake] != 1 {
		t.Errorf("Tier2Handshake count = %d, want 1", stats.MessagesByKind[wire.KindTier2Handshake])
	}
	if stats.RejectReasons["genesis-mismatch"] != 1 {
		t.Errorf("reject reasons = %v", stats.RejectReasons)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if len(stats.Connections) != 2 {
		t.Fatalf("Connections = %d, want 2", len(stats.Connections))
	}

	conn := stats.Connections[testConn]
	if conn.FinalState != "READY" || conn.Pings != 1 || conn.Pongs != 1 || conn.FrameBytes != 128 {
		t.Errorf("connection stats = %+v", conn)
	}
	if conn.PeerID != "ed25519:target" || conn.Role != log.RoleInitiator {
		t.Errorf("connection identity = %q %s", conn.PeerID, conn.Role)
	}
}

func TestRunStatsOutput(t *testing.T) {
	path := createTestLogFile(t, append(sessionEvents(), rejectedEvents()...))

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 8",
		"SESSION:",
		"ROUTED:",
		"Tier2Handshake:",
		"genesis-mismatch:",
		"Connections: 2",
		"[abc12345] INITIATOR, 6 events",
		"Pings: 1, Pongs: 1",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("stats output missing %q\n%s", want, output)
		}
	}
}

func TestRunStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6", len(lines))
	}
	var first log.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if first.ConnectionID != testConn || first.Frame == nil || first.Frame.Size != 128 {
		t.Errorf("first event = %+v", first)
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, append(sessionEvents(), rejectedEvents()...))
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse CSV: %v", err)
	}
	if len(rows) != 9 {
		t.Fatalf("got %d rows, want 9 (header + 8)", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][8] != "nonce" {
		t.Errorf("header = %v", rows[0])
	}
	// Ping row: type Ping, nonce 3.
	if rows[5][7] != "Ping" || rows[5][8] != "3" {
		t.Errorf("ping row = %v", rows[5])
	}
	// Rejected row carries state and reason.
	if rows[7][9] != "REJECTED:genesis-mismatch" {
		t.Errorf("rejected row = %v", rows[7])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("expected error for unknown format")
	}
}
