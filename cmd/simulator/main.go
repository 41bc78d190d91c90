// Command simulator replays synthetic PO60 notification streams against
// a running telemetry service: measurement packets followed by their
// pulse-rate triples, with optional malformed noise mixed in.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"time"
)

const measurementMarker = 0xE9

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:5454", "telemetry service UDP address")
		device   = flag.String("device", "AA:BB:CC:DD:EE:FF", "simulated device MAC address")
		count    = flag.Int("count", 10, "number of measurements to send")
		interval = flag.Duration("interval", 500*time.Millisecond, "delay between notifications")
		noise    = flag.Bool("noise", false, "mix in malformed and unrelated buffers")
	)
	flag.Parse()

	mac, err := net.ParseMAC(*device)
	if err != nil {
		log.Fatalf("invalid device address %q: %v", *device, err)
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	log.Printf("sending %d measurements for %s to %s", *count, *device, *addr)

	now := time.Now()
	for i := 0; i < *count; i++ {
		ts := now.Add(time.Duration(i) * time.Minute)

		send(conn, mac, measurementPacket(byte(i%16), ts))
		time.Sleep(*interval)

		if *noise && i%3 == 1 {
			// Truncated marker packet: dropped with a warning server-side.
			send(conn, mac, []byte{measurementMarker, byte(i)})
			time.Sleep(*interval)
		}

		send(conn, mac, pulseRateTriple())
		time.Sleep(*interval)

		if *noise && i%4 == 2 {
			// Unrelated buffer between measurements: dropped silently.
			send(conn, mac, []byte{0x90, 0x05, 0x15})
			time.Sleep(*interval)
		}
	}

	log.Println("done")
}

func send(conn net.Conn, mac net.HardwareAddr, payload []byte) {
	datagram := make([]byte, 0, 8+len(payload))
	datagram = append(datagram, 0x01, 0x00)
	datagram = append(datagram, mac...)
	datagram = append(datagram, payload...)

	if _, err := conn.Write(datagram); err != nil {
		log.Printf("send failed: %v", err)
	}
}

// measurementPacket builds a well-formed measurement packet with the
// given sequence nibble and end time.
func measurementPacket(seq byte, ts time.Time) []byte {
	data := make([]byte, 23)
	data[0] = measurementMarker
	data[1] = seq
	data[8] = byte(ts.Year() - 2000)
	data[9] = byte(ts.Month())
	data[10] = byte(ts.Day())
	data[11] = byte(ts.Hour())
	data[12] = byte(ts.Minute())
	data[13] = byte(ts.Second())

	avg := byte(94 + rand.Intn(4))
	data[17] = avg + 2 // max
	data[18] = avg - 3 // min
	data[19] = avg
	return data
}

func pulseRateTriple() []byte {
	avg := byte(65 + rand.Intn(20))
	return []byte{avg + 8, avg - 6, avg}
}
