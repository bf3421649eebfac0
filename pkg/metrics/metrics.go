// Package metrics exposes Prometheus counters for handshakes, routed
// messages and frames.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "near_handshake"

// Label values.
const (
	DirectionIn  = "in"
	DirectionOut = "out"

	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultError    = "error"

	ResultVerified = "verified"
	ResultInvalid  = "invalid"
	ResultSent     = "sent"
)

// Metrics holds the collectors of one node. Each instance owns its own
// registry.
type Metrics struct {
	registry *prometheus.Registry

	handshakes      *prometheus.CounterVec
	routed          *prometheus.CounterVec
	frames          *prometheus.CounterVec
	frameBytes      *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
}

// New creates and registers the collectors. Process and Go runtime
// collectors are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_total",
			Help:      "Handshakes completed or rejected, by local role.",
		}, []string{"role", "result", "reason"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routed_messages_total",
			Help:      "Routed messages sent or received, by body kind.",
		}, []string{"direction", "kind", "result"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Length-prefixed frames read or written.",
		}, []string{"direction"}),
		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bytes_total",
			Help:      "Bytes of frames read or written, including the length prefix.",
		}, []string{"direction"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from connection start to session end.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"role"}),
	}

	m.registry.MustRegister(m.handshakes, m.routed, m.frames, m.frameBytes, m.sessionDuration)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handshake records one handshake outcome. reason is empty when accepted.
func (m *Metrics) Handshake(role, result, reason string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(role, result, reason).Inc()
}

// Routed records one routed message.
func (m *Metrics) Routed(direction, kind, result string) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(direction, kind, result).Inc()
}

// Frame records one frame of size bytes.
func (m *Metrics) Frame(direction string, size int) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction).Inc()
	m.frameBytes.WithLabelValues(direction).Add(float64(size))
}

// SessionEnded records how long a session lasted.
func (m *Metrics) SessionEnded(role string, d time.Duration) {
	if m == nil {
		return
	}
	m.sessionDuration.WithLabelValues(role).Observe(d.Seconds())
}

// Handler returns an HTTP handler serving m in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve serves /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.ServeListener(ctx, ln)
}

// ServeListener serves /metrics on ln until ctx is cancelled.
func (m *Metrics) ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
