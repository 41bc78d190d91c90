package session

import (
	"log/slog"
	"os"
	"testing"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventRecorder collects emitted events for assertions.
type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) Emit(ev Event) {
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// validMeasurement builds a well-formed measurement packet with the given
// sequence nibble and second field (to vary timestamps between records).
func validMeasurement(t *testing.T, seq byte, second byte) []byte {
	t.Helper()

	data := make([]byte, protocol.MinMeasurementSize)
	data[0] = protocol.MeasurementMarker
	data[1] = seq
	copy(data[8:13], []byte{0x19, 0x03, 0x0A, 0x0C, 0x1E})
	data[13] = second
	copy(data[17:20], []byte{0x62, 0x5A, 0x5E})
	return data
}

func newTestCorrelator(device string) (*Correlator, *Session, *eventRecorder) {
	sess := New(device)
	rec := &eventRecorder{}
	return NewCorrelator(sess, rec, testLogger()), sess, rec
}

func TestCorrelatorAttachesPulseRate(t *testing.T) {
	c, sess, rec := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	c.ProcessNotification(validMeasurement(t, 0x01, 0x2D))
	c.ProcessNotification([]byte{0x50, 0x40, 0x46})

	if sess.Len() != 1 {
		t.Fatalf("Expected 1 record, got %d", sess.Len())
	}

	record := sess.Records()[0]
	if record.PulseRate == nil {
		t.Fatal("Expected pulse rate attached")
	}

	expected := protocol.PulseRateStats{Max: 80, Min: 64, Avg: 70}
	if *record.PulseRate != expected {
		t.Errorf("PulseRate = %+v, expected %+v", record.PulseRate, expected)
	}

	if c.State() != AwaitingMeasurement {
		t.Errorf("State = %s, expected awaiting_measurement after attachment", c.State())
	}

	if len(rec.ofType(EventPulseRateAttached)) != 1 {
		t.Errorf("Expected 1 pulse_rate_attached event, got %d", len(rec.ofType(EventPulseRateAttached)))
	}
}

func TestCorrelatorBackToBackMeasurements(t *testing.T) {
	c, sess, _ := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	c.ProcessNotification(validMeasurement(t, 0x01, 0x2D))
	c.ProcessNotification(validMeasurement(t, 0x02, 0x2E))

	records := sess.Records()
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	// The first record never received its pulse rate; that is a valid
	// terminal outcome for it.
	if records[0].PulseRate != nil {
		t.Error("First record should have no pulse rate")
	}

	if c.State() != AwaitingPulseRate {
		t.Errorf("State = %s, expected awaiting_pulse_rate for the second record", c.State())
	}

	// The follow-up triple belongs to the second record only.
	c.ProcessNotification([]byte{0x50, 0x40, 0x46})
	records = sess.Records()
	if records[0].PulseRate != nil {
		t.Error("First record must not receive the second record's pulse rate")
	}
	if records[1].PulseRate == nil {
		t.Error("Second record should have the pulse rate attached")
	}
}

func TestCorrelatorShortPulseRateBuffer(t *testing.T) {
	c, sess, rec := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	c.ProcessNotification(validMeasurement(t, 0x01, 0x2D))
	c.ProcessNotification([]byte{0x50, 0x40}) // two bytes, not a triple

	record := sess.Records()[0]
	if record.PulseRate != nil {
		t.Error("Record should remain without pulse rate after short buffer")
	}

	if c.State() != AwaitingPulseRate {
		t.Errorf("State = %s, expected to remain awaiting_pulse_rate", c.State())
	}

	if len(rec.ofType(EventIncompletePulseRate)) != 1 {
		t.Fatalf("Expected 1 incomplete_pulse_rate event, got %d", len(rec.ofType(EventIncompletePulseRate)))
	}

	// The triple can still arrive in a later notification.
	c.ProcessNotification([]byte{0x50, 0x40, 0x46})
	if sess.Records()[0].PulseRate == nil {
		t.Error("Record should receive pulse rate from the retried notification")
	}
}

func TestCorrelatorMalformedMeasurement(t *testing.T) {
	c, sess, rec := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	// Marker present but truncated: classified warning, nothing stored.
	c.ProcessNotification([]byte{protocol.MeasurementMarker, 0x01, 0x02})

	if sess.Len() != 0 {
		t.Errorf("Expected no records, got %d", sess.Len())
	}
	if c.State() != AwaitingMeasurement {
		t.Errorf("State = %s, expected awaiting_measurement", c.State())
	}
	if len(rec.ofType(EventMalformedPacket)) != 1 {
		t.Errorf("Expected 1 malformed_packet event, got %d", len(rec.ofType(EventMalformedPacket)))
	}
}

func TestCorrelatorUnrecognizedNotificationSilent(t *testing.T) {
	c, sess, rec := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	// No marker while awaiting a measurement: dropped without an event.
	c.ProcessNotification([]byte{0x90, 0x05, 0x15})
	c.ProcessNotification([]byte{})

	if sess.Len() != 0 {
		t.Errorf("Expected no records, got %d", sess.Len())
	}
	if len(rec.events) != 0 {
		t.Errorf("Expected no events, got %d", len(rec.events))
	}
}

func TestCorrelatorStrayBufferCannotMisattach(t *testing.T) {
	c, sess, _ := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	c.ProcessNotification(validMeasurement(t, 0x01, 0x2D))
	c.ProcessNotification([]byte{0x50, 0x40, 0x46}) // attaches, clears pending

	// A stray three-byte buffer with no measurement pending must not be
	// attached to anything.
	c.ProcessNotification([]byte{0x11, 0x12, 0x13})

	record := sess.Records()[0]
	expected := protocol.PulseRateStats{Max: 80, Min: 64, Avg: 70}
	if *record.PulseRate != expected {
		t.Errorf("PulseRate overwritten to %+v, expected %+v preserved", record.PulseRate, expected)
	}
}

func TestCorrelatorMalformedMarkerAbandonsPending(t *testing.T) {
	c, sess, _ := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	c.ProcessNotification(validMeasurement(t, 0x01, 0x2D))
	// Malformed marker packet while awaiting the pulse rate: handled as a
	// (failed) new measurement, dropping the pending reference.
	c.ProcessNotification([]byte{protocol.MeasurementMarker, 0x02})

	if c.State() != AwaitingMeasurement {
		t.Errorf("State = %s, expected awaiting_measurement", c.State())
	}

	// The triple that belonged to the abandoned measurement is now a
	// stray buffer; it must not reach the first record.
	c.ProcessNotification([]byte{0x50, 0x40, 0x46})
	if sess.Records()[0].PulseRate != nil {
		t.Error("Abandoned record must not receive a late pulse rate")
	}
}

func TestCorrelatorDispositions(t *testing.T) {
	c, _, _ := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	steps := []struct {
		name     string
		data     []byte
		expected Disposition
	}{
		{"noise while awaiting measurement", []byte{0x90, 0x05, 0x15}, DispositionIgnored},
		{"malformed marker packet", []byte{0xE9, 0x01}, DispositionMalformed},
		{"valid measurement", validMeasurement(t, 0x01, 0x2D), DispositionMeasurementStored},
		{"short pulse-rate buffer", []byte{0x50}, DispositionIncompletePulseRate},
		{"pulse-rate triple", []byte{0x50, 0x40, 0x46}, DispositionPulseRateAttached},
	}

	for _, step := range steps {
		if got := c.ProcessNotification(step.data); got != step.expected {
			t.Errorf("%s: disposition = %d, expected %d", step.name, got, step.expected)
		}
	}
}

func TestCorrelatorEmitsDecodeEvents(t *testing.T) {
	c, _, rec := newTestCorrelator("AA:BB:CC:DD:EE:FF")

	c.ProcessNotification(validMeasurement(t, 0x03, 0x2D))

	decoded := rec.ofType(EventMeasurementDecoded)
	if len(decoded) != 1 {
		t.Fatalf("Expected 1 measurement_decoded event, got %d", len(decoded))
	}
	if decoded[0].Device != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Event device = %q, expected session device", decoded[0].Device)
	}
	if decoded[0].Record == nil || decoded[0].Record.SequenceID != 3 {
		t.Errorf("Event record = %+v, expected sequence 3", decoded[0].Record)
	}
}
