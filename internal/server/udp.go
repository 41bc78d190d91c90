package server

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/config"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/metrics"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/session"
)

// UDPServer receives relayed notification datagrams from field gateways
// and routes them to device sessions.
type UDPServer struct {
	conn       *net.UDPConn
	config     *config.ServerConfig
	logger     *slog.Logger
	sessionMgr *session.Manager
	metrics    *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	// The receiver and the workers stop in sequence: the receiver must
	// be gone before its queues are closed.
	recvWg   sync.WaitGroup
	workerWg sync.WaitGroup

	// One queue per worker, sharded by device address, so a device's
	// notification stream is always handled in arrival order.
	notifChans []chan *incomingNotification

	notificationsReceived  uint64
	notificationsProcessed uint64
	envelopeErrors         uint64
	mu                     sync.RWMutex
}

// incomingNotification is one received datagram with metadata
type incomingNotification struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// Statistics is a snapshot of the server's counters for monitoring.
type Statistics struct {
	NotificationsReceived  uint64 `json:"notifications_received"`
	NotificationsProcessed uint64 `json:"notifications_processed"`
	EnvelopeErrors         uint64 `json:"envelope_errors"`
	ActiveSessions         uint64 `json:"active_sessions"`
	QueueSize              int    `json:"queue_size"`
	QueueCapacity          int    `json:"queue_capacity"`
}

// NewUDPServer creates a new UDP ingest server
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, sessionMgr *session.Manager, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	chans := make([]chan *incomingNotification, cfg.Workers)
	for i := range chans {
		chans[i] = make(chan *incomingNotification, 256)
	}

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		sessionMgr: sessionMgr,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		notifChans: chans,
	}
}

// Start begins listening for notification datagrams
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	s.logger.Info("UDP ingest server started",
		slog.String("address", addr.String()),
		slog.Int("workers", s.config.Workers),
	)

	for i := 0; i < s.config.Workers; i++ {
		s.workerWg.Add(1)
		go s.notificationProcessor(i)
	}

	s.recvWg.Add(1)
	go s.receiveLoop()

	return nil
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("stopping UDP ingest server")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// An in-flight datagram may still be headed for a queue; the
	// receiver has to exit before the queues close.
	s.recvWg.Wait()
	for _, ch := range s.notifChans {
		close(ch)
	}
	s.workerWg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP ingest server stopped",
		slog.Uint64("notifications_received", stats.NotificationsReceived),
		slog.Uint64("notifications_processed", stats.NotificationsProcessed),
		slog.Uint64("envelope_errors", stats.EnvelopeErrors),
	)

	return nil
}

// GetStatistics returns a snapshot of the server counters
func (s *UDPServer) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Statistics{
		NotificationsReceived:  s.notificationsReceived,
		NotificationsProcessed: s.notificationsProcessed,
		EnvelopeErrors:         s.envelopeErrors,
		ActiveSessions:         uint64(s.sessionMgr.ActiveSessionCount()),
		QueueSize:              s.queueLen(),
		QueueCapacity:          s.queueCap(),
	}
}

func (s *UDPServer) queueLen() int {
	n := 0
	for _, ch := range s.notifChans {
		n += len(ch)
	}
	return n
}

func (s *UDPServer) queueCap() int {
	n := 0
	for _, ch := range s.notifChans {
		n += cap(ch)
	}
	return n
}

// shardFor maps a datagram to a worker queue by the device address in
// its envelope. Keeping one device on one worker preserves the arrival
// order of its stream, which the measurement/pulse-rate pairing depends
// on. Datagrams too short to carry an address go to queue 0, where the
// envelope parser rejects them.
func (s *UDPServer) shardFor(data []byte) int {
	if len(data) < EnvelopeSize {
		return 0
	}
	h := fnv.New32a()
	h.Write(data[offsetAddr : offsetAddr+addrSize])
	return int(h.Sum32() % uint32(len(s.notifChans)))
}

// receiveLoop is the main datagram receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.recvWg.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("receive loop stopping")
			return
		default:
		}

		// Read deadline lets the loop observe cancellation.
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error("UDP read error", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		s.notificationsReceived++
		s.mu.Unlock()
		s.metrics.RecordNotificationReceived()

		// The read buffer is reused; hand workers their own copy.
		data := make([]byte, n)
		copy(data, buffer[:n])

		notif := &incomingNotification{
			data:       data,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.notifChans[s.shardFor(data)] <- notif:
			s.metrics.SetQueueSize(s.queueLen())
		default:
			s.logger.Warn("notification queue full, dropping datagram",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("size", n),
			)
		}
	}
}

// notificationProcessor drains one shard queue and feeds the session
// manager. Address-sharded queues keep each device's stream on a single
// goroutine; gateways that interleave devices still get real
// parallelism across workers.
func (s *UDPServer) notificationProcessor(workerID int) {
	defer s.workerWg.Done()

	s.logger.Debug("notification processor started", slog.Int("worker_id", workerID))

	for notif := range s.notifChans[workerID] {
		s.handleNotification(notif, workerID)
	}

	s.logger.Debug("notification processor stopped", slog.Int("worker_id", workerID))
}

// handleNotification unwraps one datagram and routes the payload
func (s *UDPServer) handleNotification(notif *incomingNotification, workerID int) {
	env, err := ParseEnvelope(notif.data)
	if err != nil {
		s.mu.Lock()
		s.envelopeErrors++
		s.mu.Unlock()
		s.metrics.RecordEnvelopeError()

		s.logger.Warn("invalid gateway envelope",
			slog.String("remote_addr", notif.remoteAddr.String()),
			slog.Int("size", len(notif.data)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	disposition := s.sessionMgr.Process(env.Device, env.Payload)

	s.mu.Lock()
	s.notificationsProcessed++
	s.mu.Unlock()
	s.metrics.RecordNotificationProcessed()
	s.recordDisposition(disposition)
}

func (s *UDPServer) recordDisposition(d session.Disposition) {
	switch d {
	case session.DispositionMeasurementStored:
		s.metrics.RecordMeasurementDecoded()
	case session.DispositionPulseRateAttached:
		s.metrics.RecordPulseRateAttached()
	case session.DispositionMalformed:
		s.metrics.RecordMalformedPacket()
	case session.DispositionIncompletePulseRate:
		s.metrics.RecordIncompletePulseRate()
	case session.DispositionIgnored:
		s.metrics.RecordUnrecognizedNotification()
	}
}
