// Package protocol implements parsing and validation of PO60 measurement
// notifications. It handles the bit-packed binary layout of measurement
// packets, including timestamp and SpO2 statistics extraction, and the
// three-byte pulse-rate follow-up notifications.
package protocol
