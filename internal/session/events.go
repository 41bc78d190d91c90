package session

import (
	"log/slog"
	"time"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/protocol"
)

// EventType classifies an event emitted by the correlation core.
type EventType string

// Event types emitted on the reporting boundary
const (
	// EventMalformedPacket: measurement marker present but the packet is
	// not well-formed. The buffer is dropped, the stream continues.
	EventMalformedPacket EventType = "malformed_packet"

	// EventIncompletePulseRate: a pulse-rate follow-up was expected but
	// the buffer is too short to carry the triple.
	EventIncompletePulseRate EventType = "incomplete_pulse_rate"

	// EventMeasurementDecoded: a measurement packet was decoded and
	// appended to the session.
	EventMeasurementDecoded EventType = "measurement_decoded"

	// EventPulseRateAttached: a pulse-rate triple was attached to the
	// pending record, completing it.
	EventPulseRateAttached EventType = "pulse_rate_attached"

	// EventNoMeasurements: a session ended without producing any records.
	EventNoMeasurements EventType = "no_measurements"

	// EventLatestMeasurement: end-of-session report carrying the
	// chronologically latest record.
	EventLatestMeasurement EventType = "latest_measurement"
)

// Event is a structured occurrence on the reporting boundary. The core
// never formats or persists events; sinks do.
type Event struct {
	Type      EventType                   `json:"type"`
	Device    string                      `json:"device"`
	Record    *protocol.MeasurementRecord `json:"record,omitempty"`
	Detail    string                      `json:"detail,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
}

// EventSink consumes events emitted by the correlation core.
type EventSink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// MultiSink fans one event out to several sinks, in order.
type MultiSink []EventSink

// Emit delivers ev to every sink in the slice.
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// LogSink renders events through a structured logger: warnings for
// protocol trouble, info for progress and end-of-session reports.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs every event.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event at a level matching its classification.
func (s *LogSink) Emit(ev Event) {
	attrs := []any{
		slog.String("device", ev.Device),
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	if ev.Record != nil {
		attrs = append(attrs, slog.String("record", ev.Record.String()))
	}

	switch ev.Type {
	case EventMalformedPacket, EventIncompletePulseRate:
		s.logger.Warn(string(ev.Type), attrs...)
	default:
		s.logger.Info(string(ev.Type), attrs...)
	}
}
