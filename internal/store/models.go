package store

import "time"

// Device is the long-lived aggregate for a unique MAC address (§3).
type Device struct {
	ID               int64
	MAC              string
	Name             string
	CurrentRSSI      int8
	FirstSeen        time.Time
	LastSeen         time.Time
	DetectionCount   int64
	ManufacturerID   *uint16
	ManufacturerName string
	MACType          string
	IsRPA            bool
	SecurityLevel    string
	PairingMethod    string
	DeviceClass      string
	Services         []string
}

// FrameRow is the persisted view of one Frame (§6's frames table).
type FrameRow struct {
	ID                 int64
	DeviceID           int64
	MAC                string
	RSSI               int8
	AdvertisingDataHex string
	PHY                string
	Channel            uint8
	FrameType          string
	ParsedSuccessfully bool
	Timestamp          time.Time
}

// TelemetrySnapshotRow mirrors telemetry_snapshots.
type TelemetrySnapshotRow struct {
	ID             int64
	SnapshotTime   time.Time
	TotalPackets   int64
	TotalDevices   int64
}

// DeviceTelemetryRow mirrors device_telemetry_history.
type DeviceTelemetryRow struct {
	ID           int64
	SnapshotID   int64
	DeviceMAC    string
	PacketCount  int64
	AvgRSSI      float64
	MinLatencyMs int64
	MaxLatencyMs int64
}

// ISO8601 formats t the way every persisted timestamp column is stored
// alongside its numeric millisecond twin, per Design Note 9(c).
func ISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MillisOf returns t truncated to epoch milliseconds.
func MillisOf(t time.Time) int64 {
	return t.UnixNano() / 1_000_000
}

// MillisToTime inverts MillisOf.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
