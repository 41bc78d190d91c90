// Package publish forwards measurement events to NATS so downstream
// consumers (dashboards, alerting, archival jobs) can react without
// touching the ingest path.
package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/session"
)

// Publisher publishes measurement events as JSON on a NATS subject. It
// implements session.EventSink; only record-carrying event types are
// published, protocol warnings stay local.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect establishes the NATS connection and returns a publisher for
// the given subject.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("po60-telemetry"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &Publisher{
		nc:      nc,
		subject: subject,
		logger:  logger,
	}, nil
}

// Emit publishes record-carrying events. Publish failures are logged and
// dropped; the notification stream must not stall on a slow broker.
func (p *Publisher) Emit(ev session.Event) {
	switch ev.Type {
	case session.EventMeasurementDecoded, session.EventPulseRateAttached, session.EventLatestMeasurement:
	default:
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal event",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Warn("failed to publish event",
			slog.String("subject", p.subject),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("error draining NATS connection", slog.String("error", err.Error()))
	}
}
