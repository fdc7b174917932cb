package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/stretchr/testify/require"

	"github.com/srgg/bleobservatory/internal/adparser"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/store"
)

func TestUpsertFirstSightingSeedsNameAndServices(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry_test.db")
	db, err := store.Open(ctx, path, store.DefaultTuning())
	require.NoError(t, err)
	defer db.Close()

	parsed := adparser.Parse(nil) // empty, but we fill fields directly below
	parsed.HasLocalName = true
	parsed.LocalName = "Widget"
	parsed.ServiceUUIDs = orderedmap.New[string, struct{}]()
	parsed.ServiceUUIDs.Set("180d", struct{}{})
	parsed.ManufacturerData = orderedmap.New[uint16, []byte]()
	parsed.ManufacturerData.Set(0x004C, []byte{0x01})

	f := frame.Frame{
		MAC:         "AA:BB:CC:DD:EE:FF",
		RSSI:        -55,
		TimestampNs: time.Now().UnixNano(),
		AddressType: frame.Public,
	}

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	id, err := Upsert(ctx, tx, f, parsed)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	dev, err := GetDevice(ctx, db, f.MAC)
	require.NoError(t, err)
	require.Equal(t, id, dev.ID)
	require.Equal(t, "Widget", dev.Name)
	require.Equal(t, int64(1), dev.DetectionCount)
	require.NotNil(t, dev.ManufacturerID)
	require.Equal(t, uint16(0x004C), *dev.ManufacturerID)
	require.Equal(t, "Apple, Inc.", dev.ManufacturerName)
	require.Contains(t, dev.Services, "180d")
}

func TestUpsertSubsequentSightingNeverBlanksKnownName(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry_test.db")
	db, err := store.Open(ctx, path, store.DefaultTuning())
	require.NoError(t, err)
	defer db.Close()

	mac := "11:22:33:44:55:66"
	named := adparser.Parse(nil)
	named.HasLocalName = true
	named.LocalName = "Thermostat"
	named.ServiceUUIDs = orderedmap.New[string, struct{}]()
	named.ManufacturerData = orderedmap.New[uint16, []byte]()

	first := frame.Frame{MAC: mac, RSSI: -60, TimestampNs: time.Now().UnixNano(), AddressType: frame.Public}
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = Upsert(ctx, tx, first, named)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// second sighting carries no parsed AD at all (e.g. a bare scan response)
	second := frame.Frame{MAC: mac, RSSI: -58, TimestampNs: time.Now().Add(time.Second).UnixNano(), AddressType: frame.Public}
	tx2, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = Upsert(ctx, tx2, second, nil)
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())

	dev, err := GetDevice(ctx, db, mac)
	require.NoError(t, err)
	require.Equal(t, "Thermostat", dev.Name, "a later unnamed sighting must not blank a known name")
	require.Equal(t, int64(2), dev.DetectionCount)
	require.Equal(t, int8(-58), dev.CurrentRSSI)
}

func TestUpsertNeverDuplicatesServices(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry_test.db")
	db, err := store.Open(ctx, path, store.DefaultTuning())
	require.NoError(t, err)
	defer db.Close()

	mac := "AA:AA:AA:AA:AA:AA"
	parsed := adparser.Parse(nil)
	parsed.ServiceUUIDs = orderedmap.New[string, struct{}]()
	parsed.ServiceUUIDs.Set("180f", struct{}{})
	parsed.ManufacturerData = orderedmap.New[uint16, []byte]()

	for i := 0; i < 3; i++ {
		f := frame.Frame{MAC: mac, RSSI: -50, TimestampNs: time.Now().Add(time.Duration(i) * time.Second).UnixNano(), AddressType: frame.Public}
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = Upsert(ctx, tx, f, parsed)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	dev, err := GetDevice(ctx, db, mac)
	require.NoError(t, err)
	require.Len(t, dev.Services, 1, "the same service UUID observed repeatedly must appear once")
}

func TestEvictOldestRespectsMaxDevices(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry_test.db")
	db, err := store.Open(ctx, path, store.DefaultTuning())
	require.NoError(t, err)
	defer db.Close()

	parsed := adparser.Parse(nil)
	parsed.ServiceUUIDs = orderedmap.New[string, struct{}]()
	parsed.ManufacturerData = orderedmap.New[uint16, []byte]()

	macs := []string{"00:00:00:00:00:01", "00:00:00:00:00:02", "00:00:00:00:00:03"}
	for i, mac := range macs {
		f := frame.Frame{MAC: mac, RSSI: -50, TimestampNs: time.Now().Add(time.Duration(i) * time.Hour).UnixNano(), AddressType: frame.Public}
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = Upsert(ctx, tx, f, parsed)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	require.NoError(t, EvictOldest(ctx, db, 2))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count))
	require.Equal(t, 2, count)

	_, err = GetDevice(ctx, db, macs[0])
	require.Error(t, err, "the oldest device should have been evicted")
}
