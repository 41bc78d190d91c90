package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/protocol"
)

// deviceSession pairs a session with its correlator and serializes
// notification processing for one device.
type deviceSession struct {
	session    *Session
	correlator *Correlator

	lastActivity time.Time
	mu           sync.Mutex
}

// Stats receives session lifecycle counts. *metrics.Metrics satisfies it.
type Stats interface {
	RecordSessionCreated()
	RecordSessionExpired()
	SetActiveSessions(count int)
}

// Manager owns one session per device address and drives their
// correlators. Idle sessions are reported and removed by a background
// cleanup routine, mirroring a device going out of range or powering off
// after its memory sync.
type Manager struct {
	sessions map[string]*deviceSession
	mu       sync.RWMutex
	logger   *slog.Logger
	sink     EventSink
	timeout  time.Duration
	stats    Stats

	done    chan struct{}
	cleanup chan struct{}
}

// SetStats attaches a lifecycle stats receiver. Must be called before the
// first notification is processed.
func (m *Manager) SetStats(stats Stats) {
	m.stats = stats
}

// NewManager creates a session manager. Sessions idle longer than
// timeout are finalized by the cleanup routine.
func NewManager(logger *slog.Logger, timeout time.Duration, sink EventSink) *Manager {
	m := &Manager{
		sessions: make(map[string]*deviceSession),
		logger:   logger,
		sink:     sink,
		timeout:  timeout,
		done:     make(chan struct{}),
		cleanup:  make(chan struct{}),
	}

	go m.cleanupRoutine()

	return m
}

// Process routes one raw notification buffer to the device's session,
// creating the session on first contact, and reports the correlator's
// disposition. Processing for a single device is strictly serial;
// distinct devices proceed independently.
func (m *Manager) Process(device string, data []byte) Disposition {
	ds := m.getOrCreate(device)

	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.lastActivity = time.Now()
	return ds.correlator.ProcessNotification(data)
}

func (m *Manager) getOrCreate(device string) *deviceSession {
	m.mu.RLock()
	ds, exists := m.sessions[device]
	m.mu.RUnlock()
	if exists {
		return ds
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the write lock.
	if ds, exists = m.sessions[device]; exists {
		return ds
	}

	sess := New(device)
	ds = &deviceSession{
		session:      sess,
		correlator:   NewCorrelator(sess, m.sink, m.logger),
		lastActivity: time.Now(),
	}
	m.sessions[device] = ds

	if m.stats != nil {
		m.stats.RecordSessionCreated()
		m.stats.SetActiveSessions(len(m.sessions))
	}

	m.logger.Info("session created",
		slog.String("device", device),
		slog.String("session_id", sess.ID),
	)

	return ds
}

// Session returns the live session for a device address, if any.
func (m *Manager) Session(device string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, exists := m.sessions[device]
	if !exists {
		return nil, false
	}
	return ds.session, true
}

// ActiveSessionCount returns the number of live sessions.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SessionInfo is a monitoring view of one device session.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	Device       string    `json:"device"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	Records      int       `json:"records"`
	Completed    int       `json:"completed_records"`
	State        string    `json:"state"`
}

// Sessions returns a snapshot of all live sessions for monitoring.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, ds := range m.sessions {
		infos = append(infos, m.sessionInfo(ds))
	}
	return infos
}

func (m *Manager) sessionInfo(ds *deviceSession) SessionInfo {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return SessionInfo{
		SessionID:    ds.session.ID,
		Device:       ds.session.Device,
		StartTime:    ds.session.StartTime,
		LastActivity: ds.lastActivity,
		Records:      ds.session.Len(),
		Completed:    ds.session.Completed(),
		State:        ds.correlator.State().String(),
	}
}

// RemoveSession finalizes a device's session: the end-of-session report
// is emitted (latest measurement, or no-measurements) and the session is
// dropped. Returns false when no session exists for the device.
func (m *Manager) RemoveSession(device string) bool {
	m.mu.Lock()
	ds, exists := m.sessions[device]
	if exists {
		delete(m.sessions, device)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	if m.stats != nil {
		m.stats.SetActiveSessions(remaining)
	}

	m.report(ds)
	return true
}

// report emits the end-of-session events for a finalized session.
func (m *Manager) report(ds *deviceSession) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	sess := ds.session

	latest, err := sess.Latest()
	if err != nil {
		m.sink.Emit(Event{
			Type:      EventNoMeasurements,
			Device:    sess.Device,
			Detail:    "no measurements received",
			Timestamp: time.Now(),
		})
	} else {
		m.sink.Emit(Event{
			Type:      EventLatestMeasurement,
			Device:    sess.Device,
			Record:    latest,
			Timestamp: time.Now(),
		})
	}

	m.logger.Info("session finalized",
		slog.String("device", sess.Device),
		slog.String("session_id", sess.ID),
		slog.Duration("duration", time.Since(sess.StartTime)),
		slog.Int("records", sess.Len()),
		slog.Int("completed_records", sess.Completed()),
	)
}

// Latest returns the chronologically latest record for a device without
// finalizing its session. Callable mid-stream.
func (m *Manager) Latest(device string) (*protocol.MeasurementRecord, error) {
	sess, exists := m.Session(device)
	if !exists {
		return nil, ErrNoMeasurements
	}
	return sess.Latest()
}

// Stop finalizes all remaining sessions and stops the cleanup routine.
func (m *Manager) Stop() {
	m.logger.Info("stopping session manager")

	close(m.done)
	<-m.cleanup

	m.mu.Lock()
	remaining := make([]*deviceSession, 0, len(m.sessions))
	for device, ds := range m.sessions {
		remaining = append(remaining, ds)
		delete(m.sessions, device)
	}
	m.mu.Unlock()

	for _, ds := range remaining {
		m.report(ds)
	}

	if m.stats != nil {
		m.stats.SetActiveSessions(0)
	}

	m.logger.Info("session manager stopped",
		slog.Int("finalized_sessions", len(remaining)),
	)
}

// cleanupRoutine periodically finalizes sessions idle past the timeout.
func (m *Manager) cleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.expireIdleSessions()
		}
	}
}

func (m *Manager) expireIdleSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for device, ds := range m.sessions {
		ds.mu.Lock()
		idle := now.Sub(ds.lastActivity)
		ds.mu.Unlock()

		if idle > m.timeout {
			expired = append(expired, device)
		}
	}
	m.mu.RUnlock()

	for _, device := range expired {
		m.logger.Info("expiring idle session", slog.String("device", device))
		if m.RemoveSession(device) && m.stats != nil {
			m.stats.RecordSessionExpired()
		}
	}
}
