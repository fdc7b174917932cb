// Package pcapexport implements the out-of-core PCAP export consumer
// (§4.10, §6): each Frame is serialized as a synthesized HCI LE Meta
// Event (0x3E), subevent LE Advertising Report (0x02), framed with
// gopacket/pcapgo's standard global+per-packet PCAP headers.
package pcapexport

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/srgg/bleobservatory/internal/frame"
)

// SnapLen and LinkType are fixed by §6: linktype 201 is
// BLUETOOTH_HCI_H4, carrying the H4 packet-indicator byte inline with
// each record.
const (
	SnapLen  = 65535
	LinkType = layers.LinkType(201)
)

const (
	h4EventPacket   = 0x04
	hciEventLEMeta  = 0x3E
	subeventLEAdvRp = 0x02
)

var eventTypeToFrameType = map[byte]frame.Type{
	0: frame.AdvInd,
	1: frame.AdvDirectInd,
	2: frame.AdvNonconnInd,
	3: frame.AdvScanInd,
	4: frame.ScanRsp,
}

var frameTypeToEventType = map[frame.Type]byte{
	frame.AdvInd:        0,
	frame.AdvDirectInd:  1,
	frame.AdvNonconnInd: 2,
	frame.AdvScanInd:    3,
	frame.ScanRsp:       4,
}

func addressTypeByte(at frame.AddressType) byte {
	switch at {
	case frame.Public:
		return 0x00
	case frame.RandomStatic, frame.RandomResolvable, frame.RandomNonResolvable:
		return 0x01
	default:
		return 0xFF
	}
}

// EncodeAdvertisingReport serializes f as one HCI LE Meta Event LE
// Advertising Report, H4-framed.
func EncodeAdvertisingReport(f frame.Frame) ([]byte, error) {
	if len(f.RawPayload) > 255 {
		return nil, fmt.Errorf("pcapexport: payload too long (%d bytes)", len(f.RawPayload))
	}
	mac, err := frame.ParseMAC(f.MAC)
	if err != nil {
		return nil, fmt.Errorf("pcapexport: bad mac %q: %w", f.MAC, err)
	}

	eventType, ok := frameTypeToEventType[f.FrameType]
	if !ok {
		eventType = frameTypeToEventType[frame.AdvInd]
	}

	var buf bytes.Buffer
	buf.WriteByte(h4EventPacket)
	buf.WriteByte(hciEventLEMeta)

	var params bytes.Buffer
	params.WriteByte(subeventLEAdvRp)
	params.WriteByte(1) // num_reports
	params.WriteByte(eventType)
	params.WriteByte(addressTypeByte(f.AddressType))
	for i := len(mac) - 1; i >= 0; i-- { // MAC bytes in reverse order, per §6
		params.WriteByte(mac[i])
	}
	params.WriteByte(byte(len(f.RawPayload)))
	params.Write(f.RawPayload)
	params.WriteByte(byte(int8(f.RSSI)))

	if params.Len() > 255 {
		return nil, fmt.Errorf("pcapexport: hci parameter length overflow (%d)", params.Len())
	}
	buf.WriteByte(byte(params.Len()))
	buf.Write(params.Bytes())

	return buf.Bytes(), nil
}

// DecodeAdvertisingReport parses one H4-framed HCI LE Meta Event LE
// Advertising Report back into a Frame. Only mac, rssi, raw_payload
// and frame_type are guaranteed to round-trip (§8); phy and channel are
// not carried by the wire format, and the address type byte is carried
// but not decoded, so all three come back at their zero values.
func DecodeAdvertisingReport(data []byte) (frame.Frame, error) {
	if len(data) < 3 || data[0] != h4EventPacket || data[1] != hciEventLEMeta {
		return frame.Frame{}, fmt.Errorf("pcapexport: not an HCI LE meta event")
	}
	paramLen := int(data[2])
	params := data[3:]
	if len(params) < paramLen {
		return frame.Frame{}, fmt.Errorf("pcapexport: truncated HCI event")
	}
	params = params[:paramLen]

	if len(params) < 11 || params[0] != subeventLEAdvRp {
		return frame.Frame{}, fmt.Errorf("pcapexport: not an LE advertising report")
	}
	eventType := params[2]
	// params[3] is address type, not needed for round trip.
	var macRev [6]byte
	copy(macRev[:], params[4:10])
	var mac [6]byte
	for i := 0; i < 6; i++ {
		mac[i] = macRev[5-i]
	}
	dataLen := int(params[10])
	if len(params) < 11+dataLen+1 {
		return frame.Frame{}, fmt.Errorf("pcapexport: truncated advertising report payload")
	}
	raw := make([]byte, dataLen)
	copy(raw, params[11:11+dataLen])
	rssi := int8(params[11+dataLen])

	ft, ok := eventTypeToFrameType[eventType]
	if !ok {
		ft = frame.TypeUnknown
	}

	return frame.Frame{
		MAC:        frame.FormatMAC(mac),
		RSSI:       rssi,
		FrameType:  ft,
		RawPayload: raw,
	}, nil
}

// Exporter writes a PCAP stream of encoded Frames.
type Exporter struct {
	w *pcapgo.Writer
}

// NewExporter opens a new PCAP stream on w, writing the §6 global
// header.
func NewExporter(w io.Writer) (*Exporter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(SnapLen, LinkType); err != nil {
		return nil, fmt.Errorf("pcapexport: write file header: %w", err)
	}
	return &Exporter{w: pw}, nil
}

// WriteFrame encodes f and appends it as one PCAP record, timestamped
// from f's UTC timestamp.
func (e *Exporter) WriteFrame(f frame.Frame) error {
	raw, err := EncodeAdvertisingReport(f)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, f.TimestampNs).UTC(),
		CaptureLength: len(raw),
		Length:        len(raw),
	}
	return e.w.WritePacket(ci, raw)
}

// Importer reads a PCAP stream previously written by Exporter.
type Importer struct {
	r *pcapgo.Reader
}

// NewImporter opens an existing PCAP stream for reading.
func NewImporter(r io.Reader) (*Importer, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("pcapexport: read file header: %w", err)
	}
	return &Importer{r: pr}, nil
}

// Next reads and decodes the next record. It returns io.EOF when the
// stream is exhausted.
func (im *Importer) Next() (frame.Frame, error) {
	data, ci, err := im.r.ReadPacketData()
	if err != nil {
		return frame.Frame{}, err
	}
	f, err := DecodeAdvertisingReport(data)
	if err != nil {
		return frame.Frame{}, err
	}
	f.TimestampNs = ci.Timestamp.UnixNano()
	return f, nil
}
