// Package telemetry implements the periodic telemetry snapshotter
// (C9, §4.9): it accumulates per-device counters in memory, fires
// every 300s to persist one TelemetrySnapshot plus one row per active
// device, and sweeps snapshot rows older than 30 days.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/store"
)

// SnapshotInterval is the fixed §4.9 cadence.
const SnapshotInterval = 300 * time.Second

// Retention is how long persisted snapshot rows are kept.
const Retention = 30 * 24 * time.Hour

// deviceCounters is one device's in-flight telemetry accumulator.
type deviceCounters struct {
	packetCount  int64
	rssiSum      int64
	lastTs       int64
	hasLast      bool
	minIntervalMs int64
	maxIntervalMs int64
}

// Snapshot is an immutable point-in-time read of the snapshotter's
// in-memory state, returned by query surface's get_telemetry (§4.8).
type Snapshot struct {
	Timestamp    time.Time
	TotalPackets int64
	TotalDevices int
	PerDevice    map[string]DeviceTelemetry
}

// DeviceTelemetry is one device's aggregated counters at snapshot time.
type DeviceTelemetry struct {
	PacketCount   int64
	AvgRSSI       float64
	MinLatencyMs  int64
	MaxLatencyMs  int64
}

// Snapshotter owns the in-memory counters and the periodic persistence
// task.
type Snapshotter struct {
	db     *sql.DB
	logger *logrus.Logger

	mu       sync.Mutex
	devices  map[string]*deviceCounters
	lastSnap Snapshot
}

// New constructs a Snapshotter writing into db. The run command passes
// the same *sql.DB the writer uses, which store.Open caps at one
// connection, so snapshot transactions and frame batches take turns on it.
func New(db *sql.DB, logger *logrus.Logger) *Snapshotter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Snapshotter{
		db:      db,
		logger:  logger,
		devices: make(map[string]*deviceCounters),
	}
}

// Observe feeds one accepted frame's counters into the in-memory
// accumulator. Call this from the pipeline's consumer chain alongside
// the writer.
func (s *Snapshotter) Observe(f frame.Frame) {
	ts := f.TimestampNs / int64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[f.MAC]
	if !ok {
		d = &deviceCounters{}
		s.devices[f.MAC] = d
	}
	d.packetCount++
	d.rssiSum += int64(f.RSSI)

	if d.hasLast {
		interval := ts - d.lastTs
		if interval < 0 {
			interval = 0
		}
		if d.minIntervalMs == 0 || interval < d.minIntervalMs {
			d.minIntervalMs = interval
		}
		if interval > d.maxIntervalMs {
			d.maxIntervalMs = interval
		}
	}
	d.lastTs = ts
	d.hasLast = true
}

// Run drives the 300s periodic task until ctx is canceled. Per §5's
// shutdown semantics, graceful shutdown does not wait for the
// snapshotter, so Run simply returns on cancellation without a final
// flush.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.fireOnce(ctx); err != nil {
				s.logger.WithError(err).Error("telemetry snapshot failed")
			}
		}
	}
}

func (s *Snapshotter) fireOnce(ctx context.Context) error {
	snap := s.buildSnapshot()

	if err := s.persist(ctx, snap); err != nil {
		return err
	}
	if err := s.sweepOld(ctx); err != nil {
		s.logger.WithError(err).Warn("telemetry retention sweep failed")
	}

	s.mu.Lock()
	s.lastSnap = snap
	s.mu.Unlock()
	return nil
}

func (s *Snapshotter) buildSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Timestamp: time.Now().UTC(),
		PerDevice: make(map[string]DeviceTelemetry, len(s.devices)),
	}
	for mac, d := range s.devices {
		snap.TotalPackets += d.packetCount
		avg := 0.0
		if d.packetCount > 0 {
			avg = float64(d.rssiSum) / float64(d.packetCount)
		}
		snap.PerDevice[mac] = DeviceTelemetry{
			PacketCount:  d.packetCount,
			AvgRSSI:      avg,
			MinLatencyMs: d.minIntervalMs,
			MaxLatencyMs: d.maxIntervalMs,
		}
	}
	snap.TotalDevices = len(snap.PerDevice)
	return snap
}

func (s *Snapshotter) persist(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("telemetry: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO telemetry_snapshots
			(snapshot_timestamp, snapshot_timestamp_ms, total_packets, total_devices)
		VALUES (?, ?, ?, ?)`,
		store.ISO8601(snap.Timestamp), store.MillisOf(snap.Timestamp), snap.TotalPackets, snap.TotalDevices)
	if err != nil {
		return fmt.Errorf("telemetry: insert snapshot: %w", err)
	}
	snapshotID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("telemetry: read snapshot id: %w", err)
	}

	for mac, dt := range snap.PerDevice {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO device_telemetry_history
				(snapshot_id, device_mac, packet_count, avg_rssi, min_latency_ms, max_latency_ms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snapshotID, mac, dt.PacketCount, dt.AvgRSSI, dt.MinLatencyMs, dt.MaxLatencyMs)
		if err != nil {
			return fmt.Errorf("telemetry: insert device row for %s: %w", mac, err)
		}
	}

	return tx.Commit()
}

func (s *Snapshotter) sweepOld(ctx context.Context) error {
	cutoff := time.Now().Add(-Retention).UTC()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM device_telemetry_history WHERE snapshot_id IN (
			SELECT id FROM telemetry_snapshots WHERE snapshot_timestamp_ms < ?
		)`, store.MillisOf(cutoff))
	if err != nil {
		return fmt.Errorf("telemetry: sweep device history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM telemetry_snapshots WHERE snapshot_timestamp_ms < ?`, store.MillisOf(cutoff))
	if err != nil {
		return fmt.Errorf("telemetry: sweep snapshots: %w", err)
	}
	return nil
}

// Current returns the most recently persisted in-memory snapshot, or
// the current (not-yet-fired) working counters if no snapshot has
// fired yet.
func (s *Snapshotter) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lastSnap.PerDevice) > 0 || !s.lastSnap.Timestamp.IsZero() {
		return s.lastSnap
	}
	return s.buildSnapshotLocked()
}

func (s *Snapshotter) buildSnapshotLocked() Snapshot {
	snap := Snapshot{Timestamp: time.Now().UTC(), PerDevice: make(map[string]DeviceTelemetry, len(s.devices))}
	for mac, d := range s.devices {
		snap.TotalPackets += d.packetCount
		avg := 0.0
		if d.packetCount > 0 {
			avg = float64(d.rssiSum) / float64(d.packetCount)
		}
		snap.PerDevice[mac] = DeviceTelemetry{
			PacketCount:  d.packetCount,
			AvgRSSI:      avg,
			MinLatencyMs: d.minIntervalMs,
			MaxLatencyMs: d.maxIntervalMs,
		}
	}
	snap.TotalDevices = len(snap.PerDevice)
	return snap
}
