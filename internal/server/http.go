package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/config"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/metrics"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/protocol"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/session"
)

// RecordLoader fetches a device's archived latest record. A nil record
// with nil error means nothing is archived.
type RecordLoader interface {
	Load(ctx context.Context, device string) (*protocol.MeasurementRecord, error)
}

// HTTPServer provides HTTP API endpoints for monitoring and session queries
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	sessionMgr *session.Manager
	udpServer  *UDPServer
	metrics    *metrics.Metrics
	hub        *Hub
	loader     RecordLoader

	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server. loader may be nil when no
// archive is configured.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, sessionMgr *session.Manager, udpServer *UDPServer,
	m *metrics.Metrics, hub *Hub, loader RecordLoader) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		sessionMgr: sessionMgr,
		udpServer:  udpServer,
		metrics:    m,
		hub:        hub,
		loader:     loader,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	mux.HandleFunc("/devices", h.withMetrics("/devices", h.handleDevices))
	mux.HandleFunc("/devices/", h.withMetrics("/devices/{addr}", h.handleDeviceDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	mux.Handle("/metrics", promhttp.Handler())

	if h.hub != nil {
		mux.HandleFunc("/ws", h.hub.handleWS)
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("stopping HTTP API server")
	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.udpServer.GetStatistics()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"components": map[string]interface{}{
			"udp_server": map[string]interface{}{
				"status":                  "running",
				"notifications_received":  stats.NotificationsReceived,
				"notifications_processed": stats.NotificationsProcessed,
				"envelope_errors":         stats.EnvelopeErrors,
				"queue_size":              stats.QueueSize,
			},
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": stats.ActiveSessions,
			},
		},
	}

	writeJSON(w, health)
}

// handleDevices implements the /devices endpoint
func (h *HTTPServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.sessionMgr.Sessions()

	writeJSON(w, map[string]interface{}{
		"total_devices": len(sessions),
		"timestamp":     time.Now().UTC(),
		"devices":       sessions,
	})
}

// handleDeviceDetail implements /devices/{addr} and /devices/{addr}/latest
func (h *HTTPServer) handleDeviceDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/devices/")
	if rest == "" {
		http.Error(w, "Device address required", http.StatusBadRequest)
		return
	}

	if device, ok := strings.CutSuffix(rest, "/latest"); ok {
		h.writeLatest(w, r, device)
		return
	}

	sess, exists := h.sessionMgr.Session(rest)
	if !exists {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]interface{}{
		"session_id": sess.ID,
		"device":     sess.Device,
		"start_time": sess.StartTime,
		"records":    sess.Records(),
	})
}

// writeLatest renders the latest-measurement query. When no live
// session has data, the archive is consulted before reporting the
// defined no-data outcome; an empty answer is never a failure.
func (h *HTTPServer) writeLatest(w http.ResponseWriter, r *http.Request, device string) {
	latest, err := h.sessionMgr.Latest(device)
	if err != nil {
		if !errors.Is(err, session.ErrNoMeasurements) {
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		if h.loader != nil {
			archived, loadErr := h.loader.Load(r.Context(), device)
			if loadErr != nil {
				h.logger.Warn("failed to load archived record",
					slog.String("device", device),
					slog.String("error", loadErr.Error()),
				)
			} else if archived != nil {
				writeJSON(w, map[string]interface{}{
					"device":   device,
					"latest":   archived,
					"archived": true,
				})
				return
			}
		}

		writeJSON(w, map[string]interface{}{
			"device":  device,
			"no_data": true,
		})
		return
	}

	writeJSON(w, map[string]interface{}{
		"device": device,
		"latest": latest,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Sanitized: the Redis password is omitted.
	writeJSON(w, map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
			"workers":      h.config.Server.Workers,
		},
		"session": map[string]interface{}{
			"idle_timeout": h.config.Session.IdleTimeout,
		},
		"nats": map[string]interface{}{
			"enabled": h.config.NATS.Enabled,
			"url":     h.config.NATS.URL,
			"subject": h.config.NATS.Subject,
		},
		"redis": map[string]interface{}{
			"enabled": h.config.Redis.Enabled,
			"addr":    h.config.Redis.Addr,
			"db":      h.config.Redis.DB,
			"ttl":     h.config.Redis.TTL,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.udpServer.GetStatistics()

	response := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"udp": map[string]interface{}{
			"notifications_received":  stats.NotificationsReceived,
			"notifications_processed": stats.NotificationsProcessed,
			"envelope_errors":         stats.EnvelopeErrors,
			"queue_size":              stats.QueueSize,
			"queue_capacity":          stats.QueueCapacity,
		},
		"sessions": map[string]interface{}{
			"active_count": h.sessionMgr.ActiveSessionCount(),
		},
	}
	if h.hub != nil {
		response["websocket"] = map[string]interface{}{
			"clients": h.hub.ClientCount(),
		}
	}

	writeJSON(w, response)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]interface{}{
		"service": "PO60 Pulse-Oximetry Telemetry Service",
		"endpoints": map[string]interface{}{
			"GET /":                       "API documentation",
			"GET /health":                 "Service health check",
			"GET /devices":                "List active device sessions",
			"GET /devices/{addr}":         "All records for a device session",
			"GET /devices/{addr}/latest":  "Chronologically latest measurement",
			"GET /config":                 "Service configuration",
			"GET /stats":                  "Service statistics",
			"GET /metrics":                "Prometheus metrics",
			"GET /ws":                     "WebSocket measurement event feed",
		},
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
