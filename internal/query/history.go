package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/srgg/bleobservatory/internal/store"
)

func nowMinusHours(hours int) time.Time {
	return time.Now().Add(-time.Duration(hours) * time.Hour)
}

const defaultHistoryLimit = 100

// FrameSample is one raw RSSI reading returned by get_device_history
// and get_raw_rssi.
type FrameSample struct {
	TimestampMs int64
	RSSI        int8
}

// ScanHistoryEntry mirrors one scan_history row.
type ScanHistoryEntry struct {
	RSSI          int8
	ScanNumber    int64
	ScanTimestamp string
}

// DeviceHistory is get_device_history's result.
type DeviceHistory struct {
	Frames      []FrameSample
	ScanHistory []ScanHistoryEntry
}

// GetDeviceHistory implements §4.8's get_device_history.
func (s *Surface) GetDeviceHistory(ctx context.Context, mac string, limit int) (DeviceHistory, error) {
	norm, err := normalizeMAC(mac)
	if err != nil {
		return DeviceHistory{}, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var deviceID int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM devices WHERE mac = ?`, norm).Scan(&deviceID); err != nil {
		if err == sql.ErrNoRows {
			return DeviceHistory{}, fmt.Errorf("%w: device %s not found", ErrInvalidParameter, norm)
		}
		return DeviceHistory{}, err
	}

	frameRows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, rssi FROM frames
		WHERE device_id = ? ORDER BY timestamp_ms DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return DeviceHistory{}, fmt.Errorf("query: history frames for %s: %w", norm, err)
	}
	defer frameRows.Close()

	var out DeviceHistory
	for frameRows.Next() {
		var f FrameSample
		if err := frameRows.Scan(&f.TimestampMs, &f.RSSI); err != nil {
			return DeviceHistory{}, err
		}
		out.Frames = append(out.Frames, f)
	}
	if err := frameRows.Err(); err != nil {
		return DeviceHistory{}, err
	}

	scanRows, err := s.db.QueryContext(ctx, `
		SELECT rssi, scan_number, scan_timestamp FROM scan_history
		WHERE device_id = ? ORDER BY scan_timestamp_ms DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return DeviceHistory{}, fmt.Errorf("query: scan history for %s: %w", norm, err)
	}
	defer scanRows.Close()
	for scanRows.Next() {
		var e ScanHistoryEntry
		if err := scanRows.Scan(&e.RSSI, &e.ScanNumber, &e.ScanTimestamp); err != nil {
			return DeviceHistory{}, err
		}
		out.ScanHistory = append(out.ScanHistory, e)
	}
	return out, scanRows.Err()
}

// RSSIDirection classifies the overall movement of a raw-RSSI window.
type RSSIDirection string

const (
	GettingCloser  RSSIDirection = "getting_closer"
	GettingFarther RSSIDirection = "getting_farther"
	RSSIStable     RSSIDirection = "stable"
)

// RawRSSIResult is get_raw_rssi's output.
type RawRSSIResult struct {
	Readings  []FrameSample
	Direction RSSIDirection
}

// GetRawRSSI implements §4.8's get_raw_rssi: the last limit readings
// in chronological order, plus a direction classification comparing
// the last reading to the first.
func (s *Surface) GetRawRSSI(ctx context.Context, mac string, limit int) (RawRSSIResult, error) {
	norm, err := normalizeMAC(mac)
	if err != nil {
		return RawRSSIResult{}, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_ms, rssi FROM frames
		WHERE mac = ? ORDER BY timestamp_ms DESC LIMIT ?`, norm, limit)
	if err != nil {
		return RawRSSIResult{}, fmt.Errorf("query: raw rssi for %s: %w", norm, err)
	}
	defer rows.Close()

	var readings []FrameSample
	for rows.Next() {
		var f FrameSample
		if err := rows.Scan(&f.TimestampMs, &f.RSSI); err != nil {
			return RawRSSIResult{}, err
		}
		readings = append(readings, f)
	}
	if err := rows.Err(); err != nil {
		return RawRSSIResult{}, err
	}

	// rows arrived newest-first; reverse to chronological order.
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}

	direction := RSSIStable
	if len(readings) >= 2 {
		delta := int(readings[len(readings)-1].RSSI) - int(readings[0].RSSI)
		switch {
		case delta > 5:
			direction = GettingCloser
		case delta < -5:
			direction = GettingFarther
		}
	}

	return RawRSSIResult{Readings: readings, Direction: direction}, nil
}

// RSSITrendPoint is one aggregated point from get_rssi_trend.
type RSSITrendPoint struct {
	TimestampMs int64
	AvgRSSI     float64
	PacketCount int64
}

// GetRSSITrend implements §4.8's get_rssi_trend, reading from C9's
// persisted snapshots rather than raw frames.
func (s *Surface) GetRSSITrend(ctx context.Context, mac string, hours int) ([]RSSITrendPoint, error) {
	norm, err := normalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = 24
	}
	cutoffMs := store.MillisOf(nowMinusHours(hours))

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts.snapshot_timestamp_ms, dt.avg_rssi, dt.packet_count
		FROM device_telemetry_history dt
		JOIN telemetry_snapshots ts ON ts.id = dt.snapshot_id
		WHERE dt.device_mac = ? AND ts.snapshot_timestamp_ms >= ?
		ORDER BY ts.snapshot_timestamp_ms ASC`, norm, cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("query: rssi trend for %s: %w", norm, err)
	}
	defer rows.Close()

	var out []RSSITrendPoint
	for rows.Next() {
		var p RSSITrendPoint
		if err := rows.Scan(&p.TimestampMs, &p.AvgRSSI, &p.PacketCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
