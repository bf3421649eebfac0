package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
		slog.String("role", event.LocalRole.String()),
	}
	if event.PeerID != "" {
		attrs = append(attrs, slog.String("peer_id", event.PeerID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs, slog.String("kind", m.Kind.String()))
		if m.ProtocolVersion != nil {
			attrs = append(attrs, slog.Uint64("protocol_version", uint64(*m.ProtocolVersion)))
		}
		if m.OldestSupportedVersion != nil {
			attrs = append(attrs, slog.Uint64("oldest_supported_version", uint64(*m.OldestSupportedVersion)))
		}
		if m.EdgeNonce != nil {
			attrs = append(attrs, slog.Uint64("edge_nonce", *m.EdgeNonce))
		}
		if m.ChainID != "" {
			attrs = append(attrs, slog.String("chain_id", m.ChainID))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Routed != nil:
		attrs = append(attrs, slog.String("body", event.Routed.Body))
		if event.Routed.Nonce != nil {
			attrs = append(attrs, slog.Uint64("nonce", *event.Routed.Nonce))
		}
		if event.Direction == DirectionIn {
			attrs = append(attrs, slog.Bool("verified", event.Routed.Verified))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Class != "" {
			attrs = append(attrs, slog.String("error_class", event.Error.Class))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
