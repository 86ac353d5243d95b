package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/joyastack/joyastack/internal/shared/config"
)

const (
	// SubjectSliceStatus carries slice lifecycle transitions.
	SubjectSliceStatus = "slices.status"
)

// SliceStatusEvent is published whenever a slice changes status.
type SliceStatusEvent struct {
	SliceID int64     `json:"slice_id"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}

// Publisher wraps a NATS connection. A nil Publisher is valid and drops
// all events, so callers never need to branch on whether messaging is
// configured.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS with the provided configuration. Returns
// (nil, nil) when no URLs are configured: event publishing is optional.
func NewPublisher(cfg *config.NATSConfig, name string) (*Publisher, error) {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}

	conn, err := nats.Connect(cfg.URLs[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("connected to NATS", "url", cfg.URLs[0])

	return &Publisher{conn: conn}, nil
}

// PublishSliceStatus publishes a slice status transition. Best-effort:
// failures are logged, never propagated.
func (p *Publisher) PublishSliceStatus(sliceID int64, status string) {
	if p == nil {
		return
	}

	event := SliceStatusEvent{SliceID: sliceID, Status: status, At: time.Now().UTC()}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal slice status event", "err", err)
		return
	}

	if err := p.conn.Publish(SubjectSliceStatus, data); err != nil {
		slog.Error("failed to publish slice status event", "slice_id", sliceID, "err", err)
	}
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
	slog.Info("NATS connection closed")
}
