package log

import (
	"sync"
	"testing"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestMultiLoggerFansOut(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}
	m := NewMultiLogger(a, nil, b)

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (nil dropped)", m.Len())
	}

	m.Log(Event{ConnectionID: "1"})
	m.Log(Event{ConnectionID: "2"})

	if a.count() != 2 || b.count() != 2 {
		t.Errorf("counts = %d, %d, want 2, 2", a.count(), b.count())
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	NewMultiLogger().Log(Event{})
}

func TestLoggerFuncAndOrNoop(t *testing.T) {
	var got string
	l := LoggerFunc(func(e Event) { got = e.ConnectionID })
	l.Log(Event{ConnectionID: "x"})
	if got != "x" {
		t.Errorf("LoggerFunc received %q", got)
	}

	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	if OrNoop(l) == nil {
		t.Error("OrNoop(l) returned nil")
	}
	NoopLogger{}.Log(Event{})
}
