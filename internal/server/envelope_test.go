package server

import (
	"bytes"
	"testing"
)

func makeEnvelope(t *testing.T, payload []byte) []byte {
	t.Helper()

	data := make([]byte, 0, EnvelopeSize+len(payload))
	data = append(data, EnvelopeVersion, 0x00)
	data = append(data, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF)
	return append(data, payload...)
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectError bool
		payload     []byte
	}{
		{
			name:    "envelope with payload",
			data:    makeEnvelope(t, []byte{0xE9, 0x01, 0x02}),
			payload: []byte{0xE9, 0x01, 0x02},
		},
		{
			name:    "envelope with empty payload",
			data:    makeEnvelope(t, nil),
			payload: []byte{},
		},
		{
			name:        "truncated envelope",
			data:        []byte{EnvelopeVersion, 0x00, 0xAA},
			expectError: true,
		},
		{
			name:        "wrong version",
			data:        append([]byte{0x02}, makeEnvelope(t, nil)[1:]...),
			expectError: true,
		},
		{
			name:        "empty datagram",
			data:        []byte{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope(tt.data)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEnvelope failed: %v", err)
			}

			if env.Device != "AA:BB:CC:DD:EE:FF" {
				t.Errorf("Device = %q, expected AA:BB:CC:DD:EE:FF", env.Device)
			}
			if !bytes.Equal(env.Payload, tt.payload) {
				t.Errorf("Payload = %v, expected %v", env.Payload, tt.payload)
			}
		})
	}
}
