// Package connection retries outbound dials with exponential backoff.
//
// A connector that fails to reach its target waits before the next
// attempt, doubling the delay each time up to a ceiling:
//
//	500ms, 1s, 2s, 4s, 8s, 10s, 10s, ...
//
// Each delay gets up to 25% random jitter added:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Backoff computes the delay from the attempt number, so one schedule can
// be shared by concurrent dialers. Retry stops after the configured number
// of attempts. A handshake
// rejected by the peer is not retried; a new connection is needed and the
// caller decides whether to make one.
package connection
