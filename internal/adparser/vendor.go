package adparser

import "bytes"

// ProtocolType is the outcome of vendor-signature matching against a
// frame's raw payload.
type ProtocolType string

const (
	ProtocolMeshtastic   ProtocolType = "Meshtastic"
	ProtocolEddystone    ProtocolType = "Eddystone"
	ProtocolIBeacon      ProtocolType = "IBeacon"
	ProtocolAltBeacon    ProtocolType = "AltBeacon"
	ProtocolCybertrack   ProtocolType = "CybertrackTag"
	ProtocolCustomRaw    ProtocolType = "CustomRaw"
	ProtocolUnknown      ProtocolType = "Unknown"
)

// signature is one static prefix -> protocol binding. New vendors are a
// one-line addition to vendorSignatures, per Design Note 9's data-driven
// dispatch rule.
type signature struct {
	prefix   []byte
	protocol ProtocolType
}

var vendorSignatures = []signature{
	{[]byte{0x16, 0xFE, 0xAA}, ProtocolEddystone},
	{[]byte{0xFF, 0x4C, 0x00, 0x02, 0x15}, ProtocolIBeacon},
	{[]byte{0xFF, 0xAC, 0xBE}, ProtocolAltBeacon},
	{[]byte{0x94, 0xFE}, ProtocolMeshtastic},
}

// MatchVendorSignature tries a longest-prefix match of raw (the whole
// payload, not a single AD structure) against the static signature
// table and returns the matched protocol, or Unknown.
func MatchVendorSignature(raw []byte) ProtocolType {
	best := ProtocolUnknown
	bestLen := -1
	for _, sig := range vendorSignatures {
		if len(sig.prefix) <= len(raw) && bytes.HasPrefix(raw, sig.prefix) && len(sig.prefix) > bestLen {
			best = sig.protocol
			bestLen = len(sig.prefix)
		}
	}
	return best
}

// VendorConfidence computes matching-frames/total-frames confidence for
// a device, given how many of its observed payloads matched the
// protocol produced by MatchVendorSignature.
func VendorConfidence(matchingFrames, totalFrames int) float64 {
	if totalFrames <= 0 {
		return 0
	}
	return float64(matchingFrames) / float64(totalFrames)
}
