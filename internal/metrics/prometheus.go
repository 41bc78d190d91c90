// Package metrics exposes Prometheus instrumentation for the telemetry
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the oximetry service
type Metrics struct {
	// Ingest metrics
	NotificationsReceived  prometheus.Counter
	NotificationsProcessed prometheus.Counter
	EnvelopeErrors         prometheus.Counter
	QueueSize              prometheus.Gauge

	// Protocol metrics
	MeasurementsDecoded       prometheus.Counter
	PulseRatesAttached        prometheus.Counter
	MalformedPackets          prometheus.Counter
	IncompletePulseRates      prometheus.Counter
	UnrecognizedNotifications prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_notifications_received_total",
			Help: "Total number of notification datagrams received",
		}),
		NotificationsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_notifications_processed_total",
			Help: "Total number of notifications handed to a session",
		}),
		EnvelopeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_envelope_errors_total",
			Help: "Total number of datagrams with an invalid gateway envelope",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "po60_notification_queue_size",
			Help: "Current number of notifications in the processing queue",
		}),

		MeasurementsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_measurements_decoded_total",
			Help: "Total number of measurement packets decoded",
		}),
		PulseRatesAttached: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_pulse_rates_attached_total",
			Help: "Total number of pulse-rate triples attached to records",
		}),
		MalformedPackets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_malformed_packets_total",
			Help: "Total number of malformed measurement packets dropped",
		}),
		IncompletePulseRates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_incomplete_pulse_rates_total",
			Help: "Total number of too-short pulse-rate notifications dropped",
		}),
		UnrecognizedNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_unrecognized_notifications_total",
			Help: "Total number of notifications silently dropped while awaiting a measurement",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "po60_active_sessions",
			Help: "Current number of live device sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_sessions_created_total",
			Help: "Total number of device sessions created",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "po60_sessions_expired_total",
			Help: "Total number of device sessions finalized on idle timeout",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "po60_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "po60_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "po60_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordNotificationReceived increments the notifications received counter
func (m *Metrics) RecordNotificationReceived() {
	m.NotificationsReceived.Inc()
}

// RecordNotificationProcessed increments the notifications processed counter
func (m *Metrics) RecordNotificationProcessed() {
	m.NotificationsProcessed.Inc()
}

// RecordEnvelopeError increments the envelope errors counter
func (m *Metrics) RecordEnvelopeError() {
	m.EnvelopeErrors.Inc()
}

// RecordMeasurementDecoded increments the measurements decoded counter
func (m *Metrics) RecordMeasurementDecoded() {
	m.MeasurementsDecoded.Inc()
}

// RecordPulseRateAttached increments the pulse rates attached counter
func (m *Metrics) RecordPulseRateAttached() {
	m.PulseRatesAttached.Inc()
}

// RecordMalformedPacket increments the malformed packets counter
func (m *Metrics) RecordMalformedPacket() {
	m.MalformedPackets.Inc()
}

// RecordIncompletePulseRate increments the incomplete pulse-rate counter
func (m *Metrics) RecordIncompletePulseRate() {
	m.IncompletePulseRates.Inc()
}

// RecordUnrecognizedNotification increments the unrecognized notifications counter
func (m *Metrics) RecordUnrecognizedNotification() {
	m.UnrecognizedNotifications.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// SetActiveSessions sets the current number of live sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionExpired increments the sessions expired counter
func (m *Metrics) RecordSessionExpired() {
	m.SessionsExpired.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
