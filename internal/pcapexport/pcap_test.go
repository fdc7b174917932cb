package pcapexport

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgg/bleobservatory/internal/frame"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []frame.Frame{
		{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -50, FrameType: frame.AdvInd, RawPayload: []byte{0x02, 0x01, 0x06}},
		{MAC: "11:22:33:44:55:66", RSSI: -90, FrameType: frame.ScanRsp, RawPayload: []byte{}},
		{MAC: "00:11:22:33:44:55", RSSI: 0, FrameType: frame.AdvNonconnInd, RawPayload: bytes.Repeat([]byte{0xAB}, 31)},
	}

	for _, f := range cases {
		raw, err := EncodeAdvertisingReport(f)
		require.NoError(t, err)

		decoded, err := DecodeAdvertisingReport(raw)
		require.NoError(t, err)

		assert.Equal(t, f.MAC, decoded.MAC)
		assert.Equal(t, f.RSSI, decoded.RSSI)
		assert.Equal(t, f.RawPayload, decoded.RawPayload)
		assert.Equal(t, f.FrameType, decoded.FrameType)
	}
}

func TestExporterImporterStream(t *testing.T) {
	frames := []frame.Frame{
		{MAC: "AA:BB:CC:DD:EE:FF", RSSI: -50, FrameType: frame.AdvInd, RawPayload: []byte{0x02, 0x01, 0x06}, TimestampNs: time.Now().UnixNano()},
		{MAC: "11:22:33:44:55:66", RSSI: -90, FrameType: frame.AdvScanInd, RawPayload: []byte{0x01, 0x02}, TimestampNs: time.Now().UnixNano()},
	}

	var buf bytes.Buffer
	exp, err := NewExporter(&buf)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, exp.WriteFrame(f))
	}

	imp, err := NewImporter(&buf)
	require.NoError(t, err)

	var got []frame.Frame
	for {
		f, err := imp.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}

	require.Len(t, got, len(frames))
	for i, f := range frames {
		assert.Equal(t, f.MAC, got[i].MAC)
		assert.Equal(t, f.RSSI, got[i].RSSI)
		assert.Equal(t, f.RawPayload, got[i].RawPayload)
		assert.Equal(t, f.FrameType, got[i].FrameType)
	}
}
