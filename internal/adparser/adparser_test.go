package adparser

import "testing"

func TestParseFlagsAndLocalName(t *testing.T) {
	raw := []byte{
		0x02, TypeFlags, 0x06, // general discoverable + BR/EDR not supported
		0x04, TypeCompleteLocalName, 'F', 'o', 'o',
	}
	p := Parse(raw)
	if !p.ParsedSuccessfully {
		t.Fatalf("expected successful parse")
	}
	if !p.HasLocalName || p.LocalName != "Foo" {
		t.Errorf("LocalName = %q, HasLocalName = %v", p.LocalName, p.HasLocalName)
	}
	if len(p.Flags) != 2 {
		t.Errorf("Flags = %v, want 2 entries", p.Flags)
	}
}

func TestParseManufacturerDataFirstWins(t *testing.T) {
	raw := []byte{
		0x05, TypeManufacturerData, 0x4C, 0x00, 0xAA, 0xBB, // Apple (0x004C)
		0x04, TypeManufacturerData, 0x4C, 0x00, 0xCC, // second Apple structure: ignored
	}
	p := Parse(raw)
	if !p.ParsedSuccessfully {
		t.Fatalf("expected successful parse")
	}
	v, ok := p.ManufacturerData.Get(0x004C)
	if !ok {
		t.Fatalf("expected manufacturer 0x004C present")
	}
	if len(v) != 2 || v[0] != 0xAA || v[1] != 0xBB {
		t.Errorf("manufacturer payload = %v", v)
	}
}

func TestParseService16BitUUID(t *testing.T) {
	raw := []byte{0x03, TypeComplete16, 0x0D, 0x18} // 0x180D little-endian
	p := Parse(raw)
	if !p.ParsedSuccessfully {
		t.Fatalf("expected successful parse")
	}
	if _, ok := p.ServiceUUIDs.Get("180d"); !ok {
		t.Error("expected service uuid 180d present")
	}
}

func TestParseTruncatedPayloadNeverPanics(t *testing.T) {
	for length := 0; length < 300; length++ {
		raw := make([]byte, length)
		for i := range raw {
			raw[i] = byte(i)
		}
		p := Parse(raw)
		if p.BytesConsumed > len(raw) {
			t.Fatalf("len=%d: BytesConsumed %d > input length", length, p.BytesConsumed)
		}
	}
}

func TestParseMalformedLengthHaltsWithoutPanicking(t *testing.T) {
	// A length byte claiming more data than is actually present.
	raw := []byte{0xFF, TypeFlags, 0x01}
	p := Parse(raw)
	if p.ParsedSuccessfully {
		t.Errorf("expected ParsedSuccessfully=false for truncated structure")
	}
	if p.BytesConsumed != 0 {
		t.Errorf("BytesConsumed = %d, want 0 (nothing valid consumed)", p.BytesConsumed)
	}
}

func TestMatchVendorSignatureLongestPrefix(t *testing.T) {
	eddystone := []byte{0x16, 0xFE, 0xAA, 0x00, 0x01}
	if got := MatchVendorSignature(eddystone); got != ProtocolEddystone {
		t.Errorf("MatchVendorSignature(eddystone) = %v, want Eddystone", got)
	}

	ibeacon := []byte{0xFF, 0x4C, 0x00, 0x02, 0x15, 0x01, 0x02}
	if got := MatchVendorSignature(ibeacon); got != ProtocolIBeacon {
		t.Errorf("MatchVendorSignature(ibeacon) = %v, want IBeacon", got)
	}

	unknown := []byte{0x01, 0x02, 0x03}
	if got := MatchVendorSignature(unknown); got != ProtocolUnknown {
		t.Errorf("MatchVendorSignature(unknown) = %v, want Unknown", got)
	}
}

func TestVendorConfidence(t *testing.T) {
	if got := VendorConfidence(5, 10); got != 0.5 {
		t.Errorf("VendorConfidence(5,10) = %v, want 0.5", got)
	}
	if got := VendorConfidence(0, 0); got != 0 {
		t.Errorf("VendorConfidence(0,0) = %v, want 0", got)
	}
}
