package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/protocol"
)

// ErrNoMeasurements is returned by Latest when the session holds no
// records. It is a defined "no data" outcome, not a failure.
var ErrNoMeasurements = errors.New("session has no measurements")

// Session is the append-only sequence of measurement records produced
// from one device's notification stream, plus the pending-attachment
// reference used by the correlator. Records are never deleted or
// deduplicated; bounding is the integrating application's concern.
type Session struct {
	ID        string
	Device    string
	StartTime time.Time

	records []*protocol.MeasurementRecord
	pending *protocol.MeasurementRecord

	mu sync.RWMutex
}

// New creates an empty session for the given device address.
func New(device string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Device:    device,
		StartTime: time.Now(),
		records:   make([]*protocol.MeasurementRecord, 0, 8),
	}
}

// Append adds a record to the session and marks it as the one awaiting a
// pulse-rate attachment.
func (s *Session) Append(record *protocol.MeasurementRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	s.pending = record
}

// AttachPending attaches a pulse-rate triple to the pending record and
// clears the pending reference. It reports false when no record is
// pending or the pending record already carries a pulse rate; a record's
// pulse rate is never overwritten.
func (s *Session) AttachPending(pr *protocol.PulseRateStats) (*protocol.MeasurementRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pending.PulseRate != nil {
		return nil, false
	}

	record := s.pending
	record.PulseRate = pr
	s.pending = nil
	return record, true
}

// ClearPending drops the pending-attachment reference. The record itself
// stays in the session, permanently without a pulse rate.
func (s *Session) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// HasPending reports whether a record is awaiting a pulse-rate attachment.
func (s *Session) HasPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending != nil
}

// Records returns a snapshot of all records in insertion order. The
// copies are detached: a pulse rate attached after the call does not
// show up in them, so callers can read or marshal without holding the
// session lock.
func (s *Session) Records() []protocol.MeasurementRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.MeasurementRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records in the session.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Completed returns the number of records that received a pulse rate.
func (s *Session) Completed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.PulseRate != nil {
			n++
		}
	}
	return n
}

// Latest returns a detached copy of the record with the greatest end
// timestamp, comparing (year, month, day, hour, minute, second) in that
// priority order. Ties go to the first-inserted record. Returns
// ErrNoMeasurements on an empty session.
func (s *Session) Latest() (*protocol.MeasurementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, ErrNoMeasurements
	}

	latest := s.records[0]
	for _, r := range s.records[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	out := latest.Clone()
	return &out, nil
}
