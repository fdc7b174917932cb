// Package registry implements the device registry's merge/update rules
// (C5, §4.5): given an accepted frame, insert-or-update the long-lived
// Device row and its advertised-service relation in the same
// transaction the batched writer uses to persist the frame, so every
// persisted frame always has a referent device row.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/srgg/bleobservatory/internal/adparser"
	"github.com/srgg/bleobservatory/internal/bledb"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/store"
)

// Upsert applies §4.5's rule 1/2 for frame f, using parsed (may be nil)
// to seed name/manufacturer on first sight. It returns the device's
// integer id. tx must be the same transaction the caller uses to
// insert f's frame row.
func Upsert(ctx context.Context, tx *sql.Tx, f frame.Frame, parsed *adparser.ParsedAd) (int64, error) {
	ts := time.Unix(0, f.TimestampNs)

	var id int64
	var existingName string
	err := tx.QueryRowContext(ctx, `SELECT id, name FROM devices WHERE mac = ?`, f.MAC).Scan(&id, &existingName)

	switch {
	case err == sql.ErrNoRows:
		name, mfgID, mfgName := seedFromParsed(parsed)
		res, insertErr := tx.ExecContext(ctx, `
			INSERT INTO devices
				(mac, name, current_rssi, first_seen, first_seen_ms, last_seen, last_seen_ms,
				 detection_count, manufacturer_id, manufacturer_name, mac_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			f.MAC, name, f.RSSI, store.ISO8601(ts), store.MillisOf(ts), store.ISO8601(ts), store.MillisOf(ts),
			mfgID, mfgName, string(f.AddressType))
		if insertErr != nil {
			return 0, fmt.Errorf("registry: insert device %s: %w", f.MAC, insertErr)
		}
		id, insertErr = res.LastInsertId()
		if insertErr != nil {
			return 0, fmt.Errorf("registry: read inserted device id: %w", insertErr)
		}

	case err != nil:
		return 0, fmt.Errorf("registry: lookup device %s: %w", f.MAC, err)

	default:
		newName := existingName
		if existingName == "" && parsed != nil && parsed.HasLocalName && parsed.LocalName != "" {
			newName = parsed.LocalName
		}
		_, updErr := tx.ExecContext(ctx, `
			UPDATE devices
			SET last_seen = CASE WHEN last_seen_ms < ? THEN ? ELSE last_seen END,
			    last_seen_ms = MAX(last_seen_ms, ?),
			    current_rssi = ?,
			    detection_count = detection_count + 1,
			    name = ?
			WHERE id = ?`,
			store.MillisOf(ts), store.ISO8601(ts), store.MillisOf(ts), f.RSSI, newName, id)
		if updErr != nil {
			return 0, fmt.Errorf("registry: update device %s: %w", f.MAC, updErr)
		}
	}

	if parsed != nil {
		if err := upsertServices(ctx, tx, id, parsed); err != nil {
			return 0, err
		}
	}

	return id, nil
}

func seedFromParsed(parsed *adparser.ParsedAd) (name string, mfgID *uint16, mfgName string) {
	if parsed == nil {
		return "", nil, ""
	}
	if parsed.HasLocalName {
		name = parsed.LocalName
	}
	for pair := parsed.ManufacturerData.Oldest(); pair != nil; pair = pair.Next() {
		id := pair.Key
		mfgID = &id
		mfgName = bledb.LookupVendor(id)
		break
	}
	return name, mfgID, mfgName
}

// upsertServices inserts any newly-observed service UUID into the
// device-services relation, idempotent on (device_id, uuid16, uuid128),
// per §4.5 rule 3. The existence check compares with IS because the
// UNIQUE constraint treats the always-NULL other uuid column as distinct.
func upsertServices(ctx context.Context, tx *sql.Tx, deviceID int64, parsed *adparser.ParsedAd) error {
	for pair := parsed.ServiceUUIDs.Oldest(); pair != nil; pair = pair.Next() {
		uuid := pair.Key
		var uuid16, uuid128 *string
		if len(uuid) == 4 {
			uuid16 = &uuid
		} else {
			uuid128 = &uuid
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO services (device_id, uuid16, uuid128)
			SELECT ?, ?, ?
			WHERE NOT EXISTS (
				SELECT 1 FROM services WHERE device_id = ? AND uuid16 IS ? AND uuid128 IS ?)`,
			deviceID, uuid16, uuid128, deviceID, uuid16, uuid128)
		if err != nil {
			return fmt.Errorf("registry: upsert service %s for device %d: %w", uuid, deviceID, err)
		}
	}
	return nil
}

// GetDevice fetches one device row and its service list by MAC.
func GetDevice(ctx context.Context, db *sql.DB, mac string) (*store.Device, error) {
	var d store.Device
	var firstSeenMs, lastSeenMs int64
	var mfgID sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT id, mac, name, current_rssi, first_seen_ms, last_seen_ms, detection_count,
		       manufacturer_id, manufacturer_name, mac_type, is_rpa, security_level,
		       pairing_method, device_class
		FROM devices WHERE mac = ?`, mac).Scan(
		&d.ID, &d.MAC, &d.Name, &d.CurrentRSSI, &firstSeenMs, &lastSeenMs, &d.DetectionCount,
		&mfgID, &d.ManufacturerName, &d.MACType, &d.IsRPA, &d.SecurityLevel,
		&d.PairingMethod, &d.DeviceClass)
	if err != nil {
		return nil, err
	}
	d.FirstSeen = time.UnixMilli(firstSeenMs).UTC()
	d.LastSeen = time.UnixMilli(lastSeenMs).UTC()
	if mfgID.Valid {
		v := uint16(mfgID.Int64)
		d.ManufacturerID = &v
	}

	rows, err := db.QueryContext(ctx, `SELECT COALESCE(uuid16, uuid128) FROM services WHERE device_id = ?`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("registry: load services for %s: %w", mac, err)
	}
	defer rows.Close()
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		d.Services = append(d.Services, uuid)
	}
	return &d, rows.Err()
}

// EvictOldest deletes the devices with the oldest first_seen until at
// most maxDevices remain, per §6's max_devices_tracked tunable.
func EvictOldest(ctx context.Context, db *sql.DB, maxDevices int) error {
	if maxDevices <= 0 {
		return nil
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count); err != nil {
		return fmt.Errorf("registry: count devices: %w", err)
	}
	if count <= maxDevices {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		DELETE FROM devices WHERE id IN (
			SELECT id FROM devices ORDER BY first_seen_ms ASC LIMIT ?
		)`, count-maxDevices)
	if err != nil {
		return fmt.Errorf("registry: evict oldest devices: %w", err)
	}
	return nil
}
