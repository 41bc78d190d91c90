package protocol

import (
	"fmt"
)

// Protocol constants for the PO60 notification stream
const (
	// MeasurementMarker is the fixed leading byte of a measurement packet.
	MeasurementMarker = 0xE9

	// MinMeasurementSize is the minimum length of a well-formed measurement packet.
	MinMeasurementSize = 23

	// MinDecodeSize is the highest byte offset the decoder touches, plus one.
	// Kept separate from MinMeasurementSize as a hardening bound only.
	MinDecodeSize = 20

	// PulseRateSize is the minimum length of a pulse-rate notification.
	PulseRateSize = 3

	// Field offsets within a measurement packet
	offsetSequence = 1
	offsetYear     = 8
	offsetMonth    = 9
	offsetDay      = 10
	offsetHour     = 11
	offsetMinute   = 12
	offsetSecond   = 13
	offsetSpO2Max  = 17
	offsetSpO2Min  = 18
	offsetSpO2Avg  = 19

	yearBase = 2000
)

// Timestamp is the measurement end time as transmitted by the device.
// Fields carry the masked wire values unchanged; the device can and does
// emit calendar-invalid values (month 0 on a factory-reset unit), and
// those are preserved rather than corrected.
type Timestamp struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// After reports whether t is strictly later than other under lexicographic
// comparison of (year, month, day, hour, minute, second).
func (t Timestamp) After(other Timestamp) bool {
	a := [6]int{t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second}
	b := [6]int{other.Year, other.Month, other.Day, other.Hour, other.Minute, other.Second}
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// SpO2Stats holds blood oxygen saturation statistics over a measurement
// window, in integer percent. The 7-bit mask bounds values to 0..127.
type SpO2Stats struct {
	Max int `json:"max"`
	Min int `json:"min"`
	Avg int `json:"avg"`
}

// PulseRateStats holds pulse rate statistics in beats per minute, 0..127
// by construction of the mask.
type PulseRateStats struct {
	Max int `json:"max"`
	Min int `json:"min"`
	Avg int `json:"avg"`
}

// MeasurementRecord is one logical measurement assembled from the stream.
// PulseRate is nil until a pulse-rate notification is attached; a record
// that never receives one is a valid terminal outcome, not an error.
type MeasurementRecord struct {
	SequenceID int             `json:"sequence_id"` // device-assigned, 0..15, wraps
	Timestamp  Timestamp       `json:"timestamp"`
	SpO2       SpO2Stats       `json:"spo2"`
	PulseRate  *PulseRateStats `json:"pulse_rate,omitempty"`
}

// Clone returns a deep copy of the record, detached from any pulse-rate
// attachment that happens to the original afterwards.
func (r *MeasurementRecord) Clone() MeasurementRecord {
	out := *r
	if r.PulseRate != nil {
		pr := *r.PulseRate
		out.PulseRate = &pr
	}
	return out
}

// IsMeasurementPacket reports whether the buffer carries the measurement
// marker byte. It says nothing about well-formedness; use
// ValidMeasurement for that.
func IsMeasurementPacket(data []byte) bool {
	return len(data) > 0 && data[0] == MeasurementMarker
}

// ValidMeasurement reports whether the buffer is a well-formed measurement
// packet: marker byte present and at least MinMeasurementSize bytes long.
// Pure classification, no error detail.
func ValidMeasurement(data []byte) bool {
	return len(data) >= MinMeasurementSize && data[0] == MeasurementMarker
}

// ParseMeasurement decodes a validated measurement packet into a record
// with no pulse rate attached. Callers must only pass buffers accepted by
// ValidMeasurement; the length check here is a hardening bound against
// out-of-range access, not part of the protocol.
func ParseMeasurement(data []byte) (*MeasurementRecord, error) {
	if len(data) < MinDecodeSize {
		return nil, fmt.Errorf("measurement packet too short: expected at least %d bytes, got %d",
			MinDecodeSize, len(data))
	}

	return &MeasurementRecord{
		SequenceID: int(data[offsetSequence] & 0x0F),
		Timestamp: Timestamp{
			Year:   yearBase + int(data[offsetYear]&0x7F),
			Month:  int(data[offsetMonth] & 0x0F),
			Day:    int(data[offsetDay] & 0x1F),
			Hour:   int(data[offsetHour] & 0x1F),
			Minute: int(data[offsetMinute] & 0x3F),
			Second: int(data[offsetSecond] & 0x3F),
		},
		SpO2: SpO2Stats{
			Max: int(data[offsetSpO2Max] & 0x7F),
			Min: int(data[offsetSpO2Min] & 0x7F),
			Avg: int(data[offsetSpO2Avg] & 0x7F),
		},
	}, nil
}

// ParsePulseRate decodes a pulse-rate notification. These carry no marker
// or framing of their own: three masked bytes, max/min/avg.
func ParsePulseRate(data []byte) (*PulseRateStats, error) {
	if len(data) < PulseRateSize {
		return nil, fmt.Errorf("pulse-rate notification too short: expected at least %d bytes, got %d",
			PulseRateSize, len(data))
	}

	return &PulseRateStats{
		Max: int(data[0] & 0x7F),
		Min: int(data[1] & 0x7F),
		Avg: int(data[2] & 0x7F),
	}, nil
}

// String returns a human-readable representation of the timestamp
func (t Timestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second)
}

// String returns a human-readable representation of the SpO2 statistics
func (s SpO2Stats) String() string {
	return fmt.Sprintf("SpO2{Max:%d%%, Min:%d%%, Avg:%d%%}", s.Max, s.Min, s.Avg)
}

// String returns a human-readable representation of the pulse-rate statistics
func (p PulseRateStats) String() string {
	return fmt.Sprintf("PR{Max:%d, Min:%d, Avg:%d}", p.Max, p.Min, p.Avg)
}

// String returns a human-readable representation of the record
func (r *MeasurementRecord) String() string {
	pr := "N/A"
	if r.PulseRate != nil {
		pr = r.PulseRate.String()
	}
	return fmt.Sprintf("Measurement{Seq:%d, Time:%s, %s, PR:%s}",
		r.SequenceID, r.Timestamp, r.SpO2, pr)
}
