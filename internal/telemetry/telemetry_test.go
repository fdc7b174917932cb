package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/store"
)

func newTestSnapshotter(t *testing.T) *Snapshotter {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "telemetry_test.db")
	db, err := store.Open(ctx, path, store.DefaultTuning())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil)
}

func TestObserveAccumulatesCounters(t *testing.T) {
	s := newTestSnapshotter(t)
	base := time.Now()

	s.Observe(frame.Frame{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -60, TimestampNs: base.UnixNano()})
	s.Observe(frame.Frame{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -50, TimestampNs: base.Add(100 * time.Millisecond).UnixNano()})
	s.Observe(frame.Frame{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -40, TimestampNs: base.Add(250 * time.Millisecond).UnixNano()})

	snap := s.buildSnapshot()
	dt, ok := snap.PerDevice["AA:BB:CC:DD:EE:FF"]
	require.True(t, ok)
	assert.Equal(t, int64(3), dt.PacketCount)
	assert.InDelta(t, -50.0, dt.AvgRSSI, 1e-9)
	assert.Equal(t, int64(100), dt.MinLatencyMs)
	assert.Equal(t, int64(150), dt.MaxLatencyMs)
}

func TestFireOncePersistsAndSweeps(t *testing.T) {
	s := newTestSnapshotter(t)
	ctx := context.Background()
	s.Observe(frame.Frame{MAC: "11:22:33:44:55:66", RSSI: -70, TimestampNs: time.Now().UnixNano()})

	require.NoError(t, s.fireOnce(ctx))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM telemetry_snapshots`).Scan(&count))
	assert.Equal(t, 1, count)

	var deviceRows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM device_telemetry_history`).Scan(&deviceRows))
	assert.Equal(t, 1, deviceRows)

	current := s.Current()
	assert.Equal(t, int64(1), current.TotalPackets)
}
