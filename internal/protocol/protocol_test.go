package protocol

import (
	"testing"
)

func TestValidMeasurement(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{
			name:     "valid measurement packet",
			data:     makeMeasurementPacket(t, 0x01),
			expected: true,
		},
		{
			name:     "marker present but packet truncated",
			data:     append([]byte{MeasurementMarker}, make([]byte, 10)...),
			expected: false,
		},
		{
			name:     "exactly one byte short",
			data:     makeMeasurementPacket(t, 0x01)[:MinMeasurementSize-1],
			expected: false,
		},
		{
			name:     "wrong marker byte",
			data:     append([]byte{0xE8}, make([]byte, MinMeasurementSize)...),
			expected: false,
		},
		{
			name:     "pulse-rate style payload",
			data:     []byte{0x50, 0x40, 0x46},
			expected: false,
		},
		{
			name:     "empty buffer",
			data:     []byte{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidMeasurement(tt.data); got != tt.expected {
				t.Errorf("ValidMeasurement() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestIsMeasurementPacket(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"marker only", []byte{MeasurementMarker}, true},
		{"marker with short payload", []byte{MeasurementMarker, 0x01}, true},
		{"no marker", []byte{0x50, 0x40, 0x46}, false},
		{"empty", []byte{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMeasurementPacket(tt.data); got != tt.expected {
				t.Errorf("IsMeasurementPacket() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestParseMeasurement(t *testing.T) {
	data := makeMeasurementPacket(t, 0x01)

	record, err := ParseMeasurement(data)
	if err != nil {
		t.Fatalf("ParseMeasurement failed: %v", err)
	}

	if record.SequenceID != 1 {
		t.Errorf("SequenceID = %d, expected 1", record.SequenceID)
	}

	expectedTime := Timestamp{Year: 2025, Month: 3, Day: 10, Hour: 12, Minute: 30, Second: 45}
	if record.Timestamp != expectedTime {
		t.Errorf("Timestamp = %+v, expected %+v", record.Timestamp, expectedTime)
	}

	expectedSpO2 := SpO2Stats{Max: 98, Min: 90, Avg: 94}
	if record.SpO2 != expectedSpO2 {
		t.Errorf("SpO2 = %+v, expected %+v", record.SpO2, expectedSpO2)
	}

	if record.PulseRate != nil {
		t.Errorf("PulseRate = %+v, expected nil on a freshly decoded record", record.PulseRate)
	}
}

func TestParseMeasurementMasksHighBits(t *testing.T) {
	data := makeMeasurementPacket(t, 0xF1) // upper nibble must be masked off

	record, err := ParseMeasurement(data)
	if err != nil {
		t.Fatalf("ParseMeasurement failed: %v", err)
	}

	if record.SequenceID != 1 {
		t.Errorf("SequenceID = %d, expected 1 (upper nibble masked)", record.SequenceID)
	}
}

func TestParseMeasurementPreservesInvalidCalendar(t *testing.T) {
	// Month 0 is what an unset device clock transmits; the decoder must
	// hand it through untouched.
	data := makeMeasurementPacket(t, 0x01)
	data[9] = 0x00

	record, err := ParseMeasurement(data)
	if err != nil {
		t.Fatalf("ParseMeasurement failed: %v", err)
	}

	if record.Timestamp.Month != 0 {
		t.Errorf("Month = %d, expected 0 preserved as-is", record.Timestamp.Month)
	}
}

func TestParseMeasurementTooShort(t *testing.T) {
	data := make([]byte, MinDecodeSize-1)
	data[0] = MeasurementMarker

	if _, err := ParseMeasurement(data); err == nil {
		t.Error("Expected error for truncated packet but got none")
	}
}

func TestParsePulseRate(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *PulseRateStats
		expectError bool
	}{
		{
			name:     "valid pulse-rate triple",
			data:     []byte{0x50, 0x40, 0x46},
			expected: &PulseRateStats{Max: 80, Min: 64, Avg: 70},
		},
		{
			name:     "high bits masked",
			data:     []byte{0xD0, 0xC0, 0xC6},
			expected: &PulseRateStats{Max: 80, Min: 64, Avg: 70},
		},
		{
			name:     "extra trailing bytes ignored",
			data:     []byte{0x50, 0x40, 0x46, 0xFF, 0xFF},
			expected: &PulseRateStats{Max: 80, Min: 64, Avg: 70},
		},
		{
			name:        "two bytes only",
			data:        []byte{0x50, 0x40},
			expectError: true,
		},
		{
			name:        "empty buffer",
			data:        []byte{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePulseRate(tt.data)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePulseRate failed: %v", err)
			}
			if *got != *tt.expected {
				t.Errorf("ParsePulseRate() = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

func TestTimestampAfter(t *testing.T) {
	base := Timestamp{Year: 2025, Month: 3, Day: 10, Hour: 12, Minute: 30, Second: 45}

	tests := []struct {
		name     string
		a, b     Timestamp
		expected bool
	}{
		{"later year", Timestamp{Year: 2026, Month: 1, Day: 1}, base, true},
		{"earlier year", Timestamp{Year: 2024, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 59}, base, false},
		{"later second only", Timestamp{Year: 2025, Month: 3, Day: 10, Hour: 12, Minute: 30, Second: 46}, base, true},
		{"identical", base, base, false},
		{"month outranks day", Timestamp{Year: 2025, Month: 4, Day: 1}, base, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.After(tt.b); got != tt.expected {
				t.Errorf("After() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestStringMethods(t *testing.T) {
	record := &MeasurementRecord{
		SequenceID: 3,
		Timestamp:  Timestamp{Year: 2025, Month: 3, Day: 10, Hour: 12, Minute: 30, Second: 45},
		SpO2:       SpO2Stats{Max: 98, Min: 90, Avg: 94},
	}

	s := record.String()
	if !containsAll(s, "Seq:3", "2025-03-10 12:30:45", "Max:98%", "PR:N/A") {
		t.Errorf("MeasurementRecord.String() missing expected content: %s", s)
	}

	record.PulseRate = &PulseRateStats{Max: 80, Min: 64, Avg: 70}
	s = record.String()
	if !containsAll(s, "PR{Max:80, Min:64, Avg:70}") {
		t.Errorf("MeasurementRecord.String() missing pulse rate: %s", s)
	}
}

// makeMeasurementPacket builds a well-formed measurement packet carrying
// the reference values: end time 2025-03-10 12:30:45, SpO2 98/90/94.
func makeMeasurementPacket(t *testing.T, seqByte byte) []byte {
	t.Helper()

	data := make([]byte, MinMeasurementSize)
	data[0] = MeasurementMarker
	data[1] = seqByte
	copy(data[8:14], []byte{0x19, 0x03, 0x0A, 0x0C, 0x1E, 0x2D})
	copy(data[17:20], []byte{0x62, 0x5A, 0x5E})
	return data
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		found := false
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
