// Package query implements the read-only query surface (C8, §4.8)
// exposed in-process to presentation layers. Every operation returns
// an at-most-one consistent snapshot; nothing here mutates shared
// state.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/srgg/bleobservatory/internal/flowanalysis"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/registry"
	"github.com/srgg/bleobservatory/internal/store"
	"github.com/srgg/bleobservatory/internal/telemetry"
	"github.com/srgg/bleobservatory/internal/trend"
)

// ErrInvalidParameter is the InputValidation error kind (§7): surfaced
// to the caller verbatim, never logged as an error.
var ErrInvalidParameter = errors.New("query: invalid parameter")

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// Surface is the query surface's entry point. It reads through db's
// pool (never the writer's private connection, per §5), issuing only
// SELECTs; the pool from store.OpenReader is not opened read-only. It
// reads the in-memory C6/C7/C9 state by reference.
type Surface struct {
	db       *sql.DB
	trendEng *trend.Engine
	analyzer *flowanalysis.Analyzer
	snap     *telemetry.Snapshotter
}

// New constructs a query Surface over already-live components.
func New(db *sql.DB, trendEng *trend.Engine, analyzer *flowanalysis.Analyzer, snap *telemetry.Snapshotter) *Surface {
	return &Surface{db: db, trendEng: trendEng, analyzer: analyzer, snap: snap}
}

func normalizePagination(page, pageSize int) (int, int) {
	if page <= 0 {
		page = defaultPage
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func normalizeMAC(mac string) (string, error) {
	norm, err := frame.NormalizeMAC(mac)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidParameter, mac, err)
	}
	return norm, nil
}

// DeviceSummary is one row of a list_devices page, enriched with its
// latest frame's timestamp and PHY.
type DeviceSummary struct {
	store.Device
	LatestFrameTimestampMs int64
	LatestFramePHY         string
}

// DeviceListPage is list_devices's paginated result.
type DeviceListPage struct {
	Page       int
	PageSize   int
	TotalCount int
	Devices    []DeviceSummary
}

// ListDevices implements §4.8's list_devices. It performs exactly one
// query for the device page and one batch query for the page's latest
// frames — never a per-device query (the N+1 the spec forbids).
func (s *Surface) ListDevices(ctx context.Context, page, pageSize int) (DeviceListPage, error) {
	page, pageSize = normalizePagination(page, pageSize)
	offset := (page - 1) * pageSize

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&total); err != nil {
		return DeviceListPage{}, fmt.Errorf("query: count devices: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mac, name, current_rssi, first_seen_ms, last_seen_ms, detection_count,
		       manufacturer_id, manufacturer_name, mac_type, is_rpa, security_level,
		       pairing_method, device_class
		FROM devices ORDER BY last_seen_ms DESC LIMIT ? OFFSET ?`, pageSize, offset)
	if err != nil {
		return DeviceListPage{}, fmt.Errorf("query: list devices: %w", err)
	}
	defer rows.Close()

	var macs []string
	byMAC := make(map[string]*DeviceSummary)
	for rows.Next() {
		var d DeviceSummary
		var firstSeenMs, lastSeenMs int64
		var mfgID sql.NullInt64
		if err := rows.Scan(&d.ID, &d.MAC, &d.Name, &d.CurrentRSSI, &firstSeenMs, &lastSeenMs,
			&d.DetectionCount, &mfgID, &d.ManufacturerName, &d.MACType, &d.IsRPA,
			&d.SecurityLevel, &d.PairingMethod, &d.DeviceClass); err != nil {
			return DeviceListPage{}, fmt.Errorf("query: scan device row: %w", err)
		}
		d.FirstSeen = store.MillisToTime(firstSeenMs)
		d.LastSeen = store.MillisToTime(lastSeenMs)
		if mfgID.Valid {
			v := uint16(mfgID.Int64)
			d.ManufacturerID = &v
		}
		macs = append(macs, d.MAC)
		byMAC[d.MAC] = &d
	}
	if err := rows.Err(); err != nil {
		return DeviceListPage{}, err
	}

	if len(macs) > 0 {
		if err := enrichLatestFrames(ctx, s.db, macs, byMAC); err != nil {
			return DeviceListPage{}, err
		}
	}

	out := make([]DeviceSummary, 0, len(macs))
	for _, mac := range macs {
		out = append(out, *byMAC[mac])
	}

	return DeviceListPage{Page: page, PageSize: pageSize, TotalCount: total, Devices: out}, nil
}

// enrichLatestFrames fetches the single latest frame per MAC in macs
// with one query (a join against each MAC's MAX(timestamp_ms)),
// rather than one query per device.
func enrichLatestFrames(ctx context.Context, db *sql.DB, macs []string, byMAC map[string]*DeviceSummary) error {
	placeholders := make([]any, len(macs))
	qs := ""
	for i, m := range macs {
		placeholders[i] = m
		if i > 0 {
			qs += ","
		}
		qs += "?"
	}

	query := fmt.Sprintf(`
		SELECT f.mac, f.timestamp_ms, f.phy
		FROM frames f
		JOIN (
			SELECT mac, MAX(timestamp_ms) AS max_ts
			FROM frames WHERE mac IN (%s)
			GROUP BY mac
		) latest ON f.mac = latest.mac AND f.timestamp_ms = latest.max_ts`, qs)

	rows, err := db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return fmt.Errorf("query: batch-enrich latest frames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mac, phy string
		var ts int64
		if err := rows.Scan(&mac, &ts, &phy); err != nil {
			return err
		}
		if d, ok := byMAC[mac]; ok {
			d.LatestFrameTimestampMs = ts
			d.LatestFramePHY = phy
		}
	}
	return rows.Err()
}

// GetDevice implements §4.8's get_device.
func (s *Surface) GetDevice(ctx context.Context, mac string) (*store.Device, error) {
	norm, err := normalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	d, err := registry.GetDevice(ctx, s.db, norm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: device %s not found", ErrInvalidParameter, norm)
		}
		return nil, err
	}
	return d, nil
}
