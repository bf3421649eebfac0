// Package log provides structured protocol logging for handshake sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at three layers (transport, wire, session). It is
// separate from operational logging (slog): protocol capture is a complete
// machine-readable trace of every frame, decoded message, state transition
// and routed body on a connection.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For analysis: write to a binary file
//	logger, _ := log.NewFileLogger("session.hslog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Transport: raw frames (FrameEvent)
//   - Wire: decoded envelopes, with handshake fields (MessageEvent)
//   - Session: state transitions and reject reasons (StateChangeEvent),
//     ping/pong bodies (RoutedEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys, usually
// with the .hslog extension. The handshake-log command views, filters and
// summarizes them.
package log
