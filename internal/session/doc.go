// Package session provides measurement session management for PO60 devices.
// It implements the two-phase correlation between measurement packets and
// their pulse-rate follow-ups, an append-only record store per device,
// latest-measurement selection, and automatic cleanup of idle sessions.
package session
