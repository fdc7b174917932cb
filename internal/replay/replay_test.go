package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgg/bleobservatory/internal/adapter"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/pcapexport"
)

func writeSampleCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	exp, err := pcapexport.NewExporter(f)
	require.NoError(t, err)
	frames := []frame.Frame{
		{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -55, FrameType: frame.AdvInd, RawPayload: []byte{0x02, 0x01, 0x06}, TimestampNs: time.Now().UnixNano()},
		{MAC: "11:22:33:44:55:66", RSSI: -70, FrameType: frame.ScanRsp, RawPayload: []byte{0x03, 0x09, 'h', 'i'}, TimestampNs: time.Now().UnixNano()},
	}
	for _, fr := range frames {
		require.NoError(t, exp.WriteFrame(fr))
	}
	return path
}

func TestPCAPAdapterReplaysAllRecords(t *testing.T) {
	path := writeSampleCapture(t)
	a := &PCAPAdapter{Path: path}

	var got []adapter.RawRecord
	err := a.Scan(context.Background(), func(r adapter.RawRecord) {
		got = append(got, r)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, frame.FormatMAC(got[0].MAC), "AA:BB:CC:DD:EE:FF")
	assert.Equal(t, int8(-55), got[0].RSSI)
}

func TestPCAPAdapterRespectsCancellation(t *testing.T) {
	path := writeSampleCapture(t)
	a := &PCAPAdapter{Path: path}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []adapter.RawRecord
	err := a.Scan(ctx, func(r adapter.RawRecord) {
		got = append(got, r)
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}
