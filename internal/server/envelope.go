package server

import (
	"fmt"
)

// Gateway envelope layout: [Version:1][Flags:1][DeviceAddr:6][Payload:0..N].
// The payload is the raw notification exactly as the device emitted it;
// a zero-length payload is legal (the gateway relays what it received).
const (
	EnvelopeVersion = 0x01
	EnvelopeSize    = 8

	offsetVersion = 0
	offsetFlags   = 1
	offsetAddr    = 2
	addrSize      = 6
)

// Envelope is the decoded gateway framing around one notification.
type Envelope struct {
	Version uint8
	Flags   uint8
	Device  string // "AA:BB:CC:DD:EE:FF"
	Payload []byte
}

// ParseEnvelope decodes the gateway framing. The returned payload
// aliases the input buffer; callers owning reused buffers must copy
// first.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) < EnvelopeSize {
		return nil, fmt.Errorf("envelope too short: expected at least %d bytes, got %d", EnvelopeSize, len(data))
	}

	if data[offsetVersion] != EnvelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: 0x%02x", data[offsetVersion])
	}

	addr := data[offsetAddr : offsetAddr+addrSize]

	return &Envelope{
		Version: data[offsetVersion],
		Flags:   data[offsetFlags],
		Device: fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
			addr[0], addr[1], addr[2], addr[3], addr[4], addr[5]),
		Payload: data[EnvelopeSize:],
	}, nil
}
