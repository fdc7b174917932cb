package bledb

import "strings"

// DataVersion identifies the snapshot of Bluetooth SIG / Nordic
// assigned-numbers data this file was hand-seeded from. The teacher's
// generator (gen/main.go) fetches Nordic's bluetooth-numbers-database
// and the Bluetooth SIG's assigned-numbers repository and writes a
// separate bledb_generated.go; this environment has no
// network access and no go:generate run, so the table below is a
// small, manually curated subset covering the services, manufacturer
// IDs, and descriptors the capture/parse/query paths actually look up.
const DataVersion = "hand-seeded-2026-subset"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"1802": "Immediate Alert",
	"1803": "Link Loss",
	"1804": "Tx Power",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"181a": "Environmental Sensing",
	"181c": "User Data",
	"1812": "Human Interface Device",
	"fe9f": "Google Eddystone",
	"feaa": "Eddystone",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a19": "Battery Level",
	"2a29": "Manufacturer Name String",
	"2a24": "Model Number String",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// vendors maps Bluetooth SIG company identifiers to their registered
// name, the same assigned-numbers list adparser's manufacturer-ID
// recognition draws its AD-parsing constants from. Kept small and
// limited to vendors this codebase already names explicitly.
var vendors = map[uint16]string{
	0x004C: "Apple, Inc.",
	0x00E0: "Google",
	0x0075: "Samsung Electronics Co. Ltd.",
	0x0006: "Microsoft",
	0x000F: "Broadcom Corporation",
	0x0059: "Nordic Semiconductor ASA",
}

// NormalizeUUID reduces any accepted UUID spelling (16-bit short form,
// 0x-prefixed, dashed or undashed 128-bit) down to a bare lowercase hex
// string: the 4-hex short form when the UUID sits in the Bluetooth SIG
// base range, otherwise the full 32-hex string.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(uuid)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	const sigBaseSuffix = "00001000800000805f9b34fb"
	if len(s) == 32 && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// LookupService returns the Bluetooth SIG assigned name for a service
// UUID, or "" if it is not in this build's table.
func LookupService(uuid string) string { return services[NormalizeUUID(uuid)] }

// LookupCharacteristic returns the assigned name for a characteristic UUID.
func LookupCharacteristic(uuid string) string { return characteristics[NormalizeUUID(uuid)] }

// LookupDescriptor returns the assigned name for a descriptor UUID.
func LookupDescriptor(uuid string) string { return descriptors[NormalizeUUID(uuid)] }

// LookupVendor returns the registered company name for a Bluetooth SIG
// manufacturer identifier, or "" if unknown to this build.
func LookupVendor(manufacturerID uint16) string { return vendors[manufacturerID] }
