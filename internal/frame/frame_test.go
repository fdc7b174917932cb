package frame

import "testing"

func TestParseMACAcceptsColonAndHyphen(t *testing.T) {
	want := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	for _, s := range []string{"AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff", "Aa:bB-Cc:dD-Ee:fF"} {
		got, err := ParseMAC(s)
		if err != nil {
			t.Fatalf("ParseMAC(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("ParseMAC(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestParseMACRejectsMalformed(t *testing.T) {
	for _, s := range []string{"AA:BB:CC:DD:EE", "AA:BB:CC:DD:EE:GG", "not a mac", ""} {
		if _, err := ParseMAC(s); err == nil {
			t.Errorf("ParseMAC(%q): expected error, got nil", s)
		}
	}
}

func TestNormalizeMACIdempotent(t *testing.T) {
	n1, err := NormalizeMAC("aa-bb-cc-dd-ee-ff")
	if err != nil {
		t.Fatalf("NormalizeMAC: %v", err)
	}
	n2, err := NormalizeMAC(n1)
	if err != nil {
		t.Fatalf("NormalizeMAC(normalized): %v", err)
	}
	if n1 != n2 {
		t.Errorf("NormalizeMAC not idempotent: %q != %q", n1, n2)
	}
	if n1 != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("NormalizeMAC = %q, want AA:BB:CC:DD:EE:FF", n1)
	}
}

func TestClassifyAddressType(t *testing.T) {
	cases := []struct {
		mac  [6]byte
		want AddressType
	}{
		{[6]byte{0xC0, 0, 0, 0, 0, 0}, RandomStatic},
		{[6]byte{0x40, 0, 0, 0, 0, 0}, RandomResolvable},
		{[6]byte{0x02, 0, 0, 0, 0, 0}, RandomNonResolvable},
		{[6]byte{0x00, 0, 0, 0, 0, 0}, Public},
	}
	for _, c := range cases {
		if got := ClassifyAddressType(c.mac); got != c.want {
			t.Errorf("ClassifyAddressType(%v) = %v, want %v", c.mac, got, c.want)
		}
	}
}

func TestResolveAddressTypePrefersAdapterReported(t *testing.T) {
	mac := [6]byte{0xC0, 0, 0, 0, 0, 0} // heuristic would say RandomStatic
	if got := ResolveAddressType(mac, Public); got != Public {
		t.Errorf("ResolveAddressType should prefer adapter-reported Public, got %v", got)
	}
	if got := ResolveAddressType(mac, ""); got != RandomStatic {
		t.Errorf("ResolveAddressType should fall back to heuristic, got %v", got)
	}
	if got := ResolveAddressType(mac, AddressTypeUnknown); got != RandomStatic {
		t.Errorf("ResolveAddressType should treat Unknown as absent, got %v", got)
	}
}

func TestDefaultChannelIsStableAndInRange(t *testing.T) {
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	c1 := DefaultChannel(mac)
	c2 := DefaultChannel(mac)
	if c1 != c2 {
		t.Errorf("DefaultChannel not deterministic: %d != %d", c1, c2)
	}
	if c1 < 37 || c1 > 39 {
		t.Errorf("DefaultChannel = %d, want one of 37,38,39", c1)
	}
}

// Extract16BitUUID reads its two bytes little-endian, which is not the
// byte order Expand16BitUUID writes them in (big-endian hex). The two are
// deliberately not round-trip inverses of each other; see DESIGN.md.
func TestExtract16BitUUIDIsLittleEndian(t *testing.T) {
	full := Expand16BitUUID(0x180D) // "0000180d-0000-1000-8000-00805f9b34fb"
	got, ok := Extract16BitUUID(full)
	if !ok {
		t.Fatalf("Extract16BitUUID(%q): not recognized as SIG-base", full)
	}
	if got != 0x0D18 {
		t.Errorf("Extract16BitUUID(%q) = 0x%04x, want 0x0d18 (byte-swapped)", full, got)
	}
}

func TestExtract16BitUUIDRejectsNonBaseUUID(t *testing.T) {
	_, ok := Extract16BitUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	if ok {
		t.Error("Extract16BitUUID: expected custom 128-bit UUID to be rejected")
	}
}
