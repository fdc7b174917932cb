// Package adparser decodes BLE advertising-data (LTV) payloads and
// matches raw payloads against a small vendor-signature table.
package adparser

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// AD type codes recognized by the decoder (§4.2).
const (
	TypeFlags               byte = 0x01
	TypeIncomplete16        byte = 0x02
	TypeComplete16          byte = 0x03
	TypeIncomplete128       byte = 0x06
	TypeComplete128         byte = 0x07
	TypeShortenedLocalName  byte = 0x08
	TypeCompleteLocalName   byte = 0x09
	TypeTxPower             byte = 0x0A
	TypeServiceData16       byte = 0x16
	TypeAppearance          byte = 0x19
	TypeManufacturerData    byte = 0xFF
)

var typeNames = map[byte]string{
	TypeFlags:              "Flags",
	TypeIncomplete16:       "Incomplete List of 16-bit Service UUIDs",
	TypeComplete16:         "Complete List of 16-bit Service UUIDs",
	TypeIncomplete128:      "Incomplete List of 128-bit Service UUIDs",
	TypeComplete128:        "Complete List of 128-bit Service UUIDs",
	TypeShortenedLocalName: "Shortened Local Name",
	TypeCompleteLocalName:  "Complete Local Name",
	TypeTxPower:            "Tx Power Level",
	TypeServiceData16:      "Service Data - 16-bit UUID",
	TypeAppearance:         "Appearance",
	TypeManufacturerData:   "Manufacturer Specific Data",
}

// TypeName returns the human-readable name for an AD type, or a
// synthesized "Unknown (0xNN)" label when it is not in the static table.
func TypeName(adType byte) string {
	if n, ok := typeNames[adType]; ok {
		return n
	}
	return fmt.Sprintf("Unknown (0x%02X)", adType)
}

// AdStructure is one decoded Length-Type-Value record.
type AdStructure struct {
	ADType   byte
	Data     []byte
	TypeName string
}

var flagNames = [...]string{
	"LE Limited Discoverable",
	"LE General Discoverable",
	"BR/EDR Not Supported",
	"Simultaneous LE+BR/EDR (Controller)",
	"Simultaneous LE+BR/EDR (Host)",
}

// ParsedAd is the decoded view of a raw advertising payload.
type ParsedAd struct {
	Structures   []AdStructure
	Flags        []string
	LocalName    string
	HasLocalName bool
	TxPower      *int8
	Appearance   *uint16

	// ServiceUUIDs preserves insertion order across both 16- and
	// 128-bit service UUID structures.
	ServiceUUIDs *orderedmap.OrderedMap[string, struct{}]
	// ManufacturerData maps company id -> payload, insertion order preserved.
	ManufacturerData *orderedmap.OrderedMap[uint16, []byte]
	// ServiceData maps a UUID string -> payload, insertion order preserved.
	ServiceData *orderedmap.OrderedMap[string, []byte]

	ParsedSuccessfully bool
	BytesConsumed      int
}

func newParsedAd() *ParsedAd {
	return &ParsedAd{
		ServiceUUIDs:     orderedmap.New[string, struct{}](),
		ManufacturerData: orderedmap.New[uint16, []byte](),
		ServiceData:      orderedmap.New[string, []byte](),
	}
}

// Parse walks raw left-to-right decoding LTV structures. Malformed
// suffixes never discard earlier structures and never panic: parsing
// simply halts and ParsedSuccessfully is reported false.
func Parse(raw []byte) *ParsedAd {
	out := newParsedAd()

	p := 0
	for p < len(raw) {
		length := int(raw[p])
		if length == 0 || p+length+1 > len(raw) {
			out.ParsedSuccessfully = p == len(raw)
			out.BytesConsumed = p
			return out
		}
		adType := raw[p+1]
		data := raw[p+2 : p+2+(length-1)]

		s := AdStructure{ADType: adType, Data: append([]byte(nil), data...), TypeName: TypeName(adType)}
		out.Structures = append(out.Structures, s)
		applyStructure(out, s)

		p += length + 1
	}

	out.ParsedSuccessfully = true
	out.BytesConsumed = p
	return out
}

func applyStructure(out *ParsedAd, s AdStructure) {
	switch s.ADType {
	case TypeFlags:
		if len(s.Data) > 0 {
			bits := s.Data[0]
			for i, name := range flagNames {
				if bits&(1<<uint(i)) != 0 {
					out.Flags = append(out.Flags, name)
				}
			}
		}
	case TypeIncomplete16, TypeComplete16:
		for i := 0; i+2 <= len(s.Data); i += 2 {
			v := binary.LittleEndian.Uint16(s.Data[i : i+2])
			out.ServiceUUIDs.Set(fmt.Sprintf("%04x", v), struct{}{})
		}
	case TypeIncomplete128, TypeComplete128:
		for i := 0; i+16 <= len(s.Data); i += 16 {
			out.ServiceUUIDs.Set(render128(s.Data[i:i+16]), struct{}{})
		}
	case TypeShortenedLocalName, TypeCompleteLocalName:
		out.LocalName = toUTF8Lossy(s.Data)
		out.HasLocalName = true
	case TypeTxPower:
		if len(s.Data) > 0 {
			v := int8(s.Data[0])
			out.TxPower = &v
		}
	case TypeServiceData16:
		if len(s.Data) >= 2 {
			uuid := binary.LittleEndian.Uint16(s.Data[0:2])
			payload := append([]byte(nil), s.Data[2:]...)
			out.ServiceData.Set(fmt.Sprintf("%04x", uuid), payload)
		}
	case TypeAppearance:
		if len(s.Data) >= 2 {
			v := binary.LittleEndian.Uint16(s.Data[0:2])
			out.Appearance = &v
		}
	case TypeManufacturerData:
		if len(s.Data) >= 2 {
			company := binary.LittleEndian.Uint16(s.Data[0:2])
			if _, seen := out.ManufacturerData.Get(company); !seen {
				payload := append([]byte(nil), s.Data[2:]...)
				out.ManufacturerData.Set(company, payload)
			}
		}
	}
}

// render128 formats 16 raw bytes as a canonical
// xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx UUID string.
func render128(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.BigEndian.Uint32(b[0:4]),
		binary.BigEndian.Uint16(b[4:6]),
		binary.BigEndian.Uint16(b[6:8]),
		binary.BigEndian.Uint16(b[8:10]),
		b[10:16])
}

// toUTF8Lossy decodes b as UTF-8, replacing invalid sequences rather
// than failing, per §4.2's "best-effort lossy" rule for local names.
func toUTF8Lossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
