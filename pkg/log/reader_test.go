package log

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/near-handshake/handshake-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hslog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func readAll(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	var out []Event
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, event)
	}
}

func testEvents(base time.Time) []Event {
	return []Event{
		{Timestamp: base, ConnectionID: "conn-1", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryMessage, LocalRole: RoleInitiator},
		{Timestamp: base.Add(time.Second), ConnectionID: "conn-1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage, LocalRole: RoleInitiator,
			Message: &MessageEvent{Kind: wire.KindTier2Handshake}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "conn-2", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage, LocalRole: RoleResponder,
			PeerID: "ed25519:peer", Message: &MessageEvent{Kind: wire.KindRouted}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "conn-2", Direction: DirectionIn, Layer: LayerSession, Category: CategoryState, LocalRole: RoleResponder,
			PeerID: "ed25519:peer", StateChange: &StateChangeEvent{Entity: StateEntitySession, NewState: "READY"}},
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	path := createTestLogFile(t, testEvents(time.Now()))

	read := readAll(t, path, Filter{})
	if len(read) != 4 {
		t.Fatalf("got %d events, want 4", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[3].ConnectionID != "conn-2" {
		t.Errorf("events out of order: %q .. %q", read[0].ConnectionID, read[3].ConnectionID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.hslog")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, path, Filter{}); len(got) != 0 {
		t.Errorf("got %d events from empty file", len(got))
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.hslog")); err == nil {
		t.Error("NewReader on missing file should fail")
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, testEvents(base))

	dirIn := DirectionIn
	layerWire := LayerWire
	catState := CategoryState
	responder := RoleResponder
	routed := wire.KindRouted
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "conn-1"}, 2},
		{"direction", Filter{Direction: &dirIn}, 2},
		{"layer", Filter{Layer: &layerWire}, 2},
		{"category", Filter{Category: &catState}, 1},
		{"role", Filter{Role: &responder}, 2},
		{"kind", Filter{Kind: &routed}, 1},
		{"peer", Filter{PeerID: "ed25519:peer"}, 2},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{ConnectionID: "conn-2", Layer: &layerWire}, 1},
		{"no match", Filter{ConnectionID: "conn-9"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(readAll(t, path, tt.filter)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}
