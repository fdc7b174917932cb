package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgg/bleobservatory/internal/flowanalysis"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/registry"
	"github.com/srgg/bleobservatory/internal/store"
	"github.com/srgg/bleobservatory/internal/telemetry"
	"github.com/srgg/bleobservatory/internal/trend"
)

func setupSurface(t *testing.T) *Surface {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "query_test.db")
	db, err := store.Open(ctx, path, store.DefaultTuning())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 3; i++ {
		f := frame.Frame{
			MAC:         []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02", "AA:BB:CC:DD:EE:03"}[i],
			RSSI:        int8(-50 - i),
			TimestampNs: now.Add(time.Duration(i) * time.Second).UnixNano(),
			AddressType: frame.Public,
		}
		_, err := registry.Upsert(ctx, tx, f, nil)
		require.NoError(t, err)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO frames (device_id, mac, rssi, advertising_data, phy, channel, frame_type,
				parsed_successfully, timestamp, timestamp_ms)
			SELECT id, ?, ?, '', 'Le1M', 37, 'AdvInd', 1, ?, ?
			FROM devices WHERE mac = ?`,
			f.MAC, f.RSSI, store.ISO8601(time.Unix(0, f.TimestampNs)), store.MillisOf(time.Unix(0, f.TimestampNs)), f.MAC)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	return New(db, trend.NewEngine(), flowanalysis.NewAnalyzer(), telemetry.New(db, nil))
}

func TestListDevicesPaginationAndEnrichment(t *testing.T) {
	s := setupSurface(t)
	page, err := s.ListDevices(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Devices, 2)
	for _, d := range page.Devices {
		assert.NotZero(t, d.LatestFrameTimestampMs)
	}
}

func TestGetDeviceRejectsBadMAC(t *testing.T) {
	s := setupSurface(t)
	_, err := s.GetDevice(context.Background(), "not-a-mac")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestGetDeviceAcceptsHyphenForm(t *testing.T) {
	s := setupSurface(t)
	d, err := s.GetDevice(context.Background(), "aa-bb-cc-dd-ee-01")
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", d.MAC)
}

func TestGetRawRSSIDirection(t *testing.T) {
	s := setupSurface(t)
	res, err := s.GetRawRSSI(context.Background(), "AA:BB:CC:DD:EE:01", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Readings)
	assert.Equal(t, RSSIStable, res.Direction) // a single reading has no delta to classify
}
