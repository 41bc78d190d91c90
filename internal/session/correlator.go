package session

import (
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/protocol"
)

// State is the correlator's position in the two-phase record assembly.
type State int

// Correlator states
const (
	// AwaitingMeasurement: the next expected notification is a
	// measurement packet.
	AwaitingMeasurement State = iota

	// AwaitingPulseRate: a measurement was just decoded and the next
	// non-marker notification should carry its pulse-rate triple.
	AwaitingPulseRate
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case AwaitingMeasurement:
		return "awaiting_measurement"
	case AwaitingPulseRate:
		return "awaiting_pulse_rate"
	default:
		return "unknown"
	}
}

// Disposition classifies what the correlator did with one notification.
// It exists for instrumentation; events remain the reporting boundary and
// ignored buffers stay silent there.
type Disposition int

// Dispositions returned by ProcessNotification
const (
	DispositionIgnored Disposition = iota
	DispositionMeasurementStored
	DispositionPulseRateAttached
	DispositionMalformed
	DispositionIncompletePulseRate
)

// Correlator consumes raw notification buffers in arrival order and
// assembles measurement records in the session it was given. Transitions
// are not re-entrant; callers must serialize ProcessNotification per
// session. The correlator mutates the session it borrows but never
// retains it beyond a call's bookkeeping.
type Correlator struct {
	session *Session
	sink    EventSink
	logger  *slog.Logger
	state   State
}

// NewCorrelator creates a correlator feeding the given session.
func NewCorrelator(session *Session, sink EventSink, logger *slog.Logger) *Correlator {
	return &Correlator{
		session: session,
		sink:    sink,
		logger:  logger,
	}
}

// State returns the correlator's current state.
func (c *Correlator) State() State {
	return c.state
}

// ProcessNotification consumes one raw notification buffer and reports
// what became of it. No input is fatal: malformed or unrecognized buffers
// are dropped and the stream continues.
func (c *Correlator) ProcessNotification(data []byte) Disposition {
	c.logger.Debug("notification received",
		slog.String("device", c.session.Device),
		slog.String("raw", hex.EncodeToString(data)),
		slog.Int("length", len(data)),
		slog.String("state", c.state.String()),
	)

	switch c.state {
	case AwaitingPulseRate:
		return c.consumePulseRate(data)
	default:
		return c.consumeMeasurement(data)
	}
}

// consumeMeasurement handles a buffer while a measurement packet is
// expected.
func (c *Correlator) consumeMeasurement(data []byte) Disposition {
	if !protocol.IsMeasurementPacket(data) {
		// Not a protocol error in this state; dropped silently.
		return DispositionIgnored
	}

	if !protocol.ValidMeasurement(data) {
		c.emit(Event{
			Type:   EventMalformedPacket,
			Detail: "malformed measurement packet",
		})
		return DispositionMalformed
	}

	record, err := protocol.ParseMeasurement(data)
	if err != nil {
		// Unreachable after validation; classified the same way.
		c.emit(Event{
			Type:   EventMalformedPacket,
			Detail: err.Error(),
		})
		return DispositionMalformed
	}

	c.session.Append(record)
	c.state = AwaitingPulseRate

	c.emit(Event{
		Type:   EventMeasurementDecoded,
		Record: record,
	})
	return DispositionMeasurementStored
}

// consumePulseRate handles a buffer while a pulse-rate follow-up is
// expected.
func (c *Correlator) consumePulseRate(data []byte) Disposition {
	if protocol.IsMeasurementPacket(data) {
		// A new measurement supersedes the pending one, which stays in
		// the session without a pulse rate. Dropping the pending
		// reference here is what keeps a later stray buffer from being
		// attached to the wrong record.
		c.session.ClearPending()
		c.state = AwaitingMeasurement
		return c.consumeMeasurement(data)
	}

	pr, err := protocol.ParsePulseRate(data)
	if err != nil {
		c.emit(Event{
			Type:   EventIncompletePulseRate,
			Detail: "incomplete pulse-rate data",
		})
		// Still awaiting; the triple may arrive in the next notification.
		return DispositionIncompletePulseRate
	}

	record, ok := c.session.AttachPending(pr)
	c.state = AwaitingMeasurement
	if !ok {
		return DispositionIgnored
	}

	c.emit(Event{
		Type:   EventPulseRateAttached,
		Record: record,
	})
	return DispositionPulseRateAttached
}

func (c *Correlator) emit(ev Event) {
	ev.Device = c.session.Device
	ev.Timestamp = time.Now()
	c.sink.Emit(ev)
}
