// Package server implements the UDP ingest endpoint for relayed PO60
// notifications and the HTTP API for monitoring and session queries.
// BLE stays in the field gateway; each GATT notification arrives here as
// one UDP datagram wrapped in a small addressing envelope.
package server
