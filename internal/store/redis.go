// Package store archives completed measurement records in Redis so the
// latest reading per device survives service restarts and is reachable
// by other services.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/protocol"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/session"
)

const keyPrefix = "po60:latest:"

// Archive persists the most recent completed record per device. It
// implements session.EventSink and writes on pulse-rate attachment, the
// point where a record is complete.
type Archive struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Connect creates the Redis client and verifies the connection.
func Connect(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*Archive, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &Archive{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func key(device string) string {
	return keyPrefix + device
}

// Emit archives the record carried by a pulse_rate_attached event.
// Archive failures are logged and dropped; persistence is best-effort
// and must not stall the notification stream.
func (a *Archive) Emit(ev session.Event) {
	if ev.Type != session.EventPulseRateAttached || ev.Record == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.Save(ctx, ev.Device, ev.Record); err != nil {
		a.logger.Warn("failed to archive record",
			slog.String("device", ev.Device),
			slog.String("error", err.Error()),
		)
	}
}

// Save stores the record as the device's latest reading.
func (a *Archive) Save(ctx context.Context, device string, record *protocol.MeasurementRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return a.client.Set(ctx, key(device), data, a.ttl).Err()
}

// Load fetches the archived latest record for a device. A nil record
// with nil error means nothing is archived.
func (a *Archive) Load(ctx context.Context, device string) (*protocol.MeasurementRecord, error) {
	val, err := a.client.Get(ctx, key(device)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record protocol.MeasurementRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archived record: %w", err)
	}

	return &record, nil
}

// Close releases the Redis client.
func (a *Archive) Close() error {
	return a.client.Close()
}
