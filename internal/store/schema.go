// Package store owns the persistent-store schema and connection
// management. The exact CREATE TABLE DDL is implementation detail (the
// spec treats the storage's DDL as an external concern); this package
// still needs a working schema to open against, so it creates one with
// CREATE TABLE IF NOT EXISTS against the six tables named in §6.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS devices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mac TEXT NOT NULL UNIQUE,
	name TEXT,
	current_rssi INTEGER,
	first_seen TEXT NOT NULL,
	first_seen_ms INTEGER NOT NULL,
	last_seen TEXT NOT NULL,
	last_seen_ms INTEGER NOT NULL,
	detection_count INTEGER NOT NULL DEFAULT 0,
	manufacturer_id INTEGER,
	manufacturer_name TEXT,
	mac_type TEXT,
	is_rpa INTEGER NOT NULL DEFAULT 0,
	security_level TEXT,
	pairing_method TEXT,
	device_class TEXT
);

CREATE TABLE IF NOT EXISTS services (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL REFERENCES devices(id),
	uuid16 TEXT,
	uuid128 TEXT,
	service_name TEXT,
	UNIQUE(device_id, uuid16, uuid128)
);

CREATE TABLE IF NOT EXISTS frames (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL REFERENCES devices(id),
	mac TEXT NOT NULL,
	rssi INTEGER NOT NULL,
	advertising_data TEXT,
	phy TEXT,
	channel INTEGER,
	frame_type TEXT,
	parsed_successfully INTEGER NOT NULL DEFAULT 1,
	timestamp TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_frames_mac_ts ON frames(mac, timestamp_ms DESC);
CREATE INDEX IF NOT EXISTS idx_frames_device_ts ON frames(device_id, timestamp_ms DESC);
CREATE INDEX IF NOT EXISTS idx_frames_ts ON frames(timestamp_ms DESC);

CREATE TABLE IF NOT EXISTS scan_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER NOT NULL REFERENCES devices(id),
	rssi INTEGER NOT NULL,
	scan_number INTEGER NOT NULL,
	scan_timestamp TEXT NOT NULL,
	scan_timestamp_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS telemetry_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_timestamp TEXT NOT NULL,
	snapshot_timestamp_ms INTEGER NOT NULL,
	total_packets INTEGER NOT NULL,
	total_devices INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS device_telemetry_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id INTEGER NOT NULL REFERENCES telemetry_snapshots(id),
	device_mac TEXT NOT NULL,
	packet_count INTEGER NOT NULL,
	avg_rssi REAL NOT NULL,
	min_latency_ms INTEGER NOT NULL,
	max_latency_ms INTEGER NOT NULL
);
`

// Tuning are the startup PRAGMAs the batched writer applies, per §4.4.
type Tuning struct {
	CacheSizePages int // applied as a positive cache_size, which SQLite reads as pages
}

// DefaultTuning matches §4.4's "at least 10 000 pages" requirement.
func DefaultTuning() Tuning {
	return Tuning{CacheSizePages: 10_000}
}

// Open opens (creating if necessary) the sqlite-backed store at path,
// applies the §4.4 PRAGMAs, and ensures the schema exists. A
// StorageFatal-class error (per §7) is returned if the schema check
// fails.
func Open(ctx context.Context, path string, tuning Tuning) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer connection per §5

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		fmt.Sprintf("PRAGMA cache_size=%d", tuning.CacheSizePages),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: apply %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema check failed: %w", err)
	}
	return db, nil
}

// OpenReader opens an additional connection pool against the same
// file, for the query surface (§5: "readers borrow from a pool",
// distinct from the writer's private connection). The pool is not
// opened in SQLite's read-only mode, so nothing at the driver level
// rejects a write issued through it.
func OpenReader(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open reader %q: %w", path, err)
	}
	return db, nil
}
