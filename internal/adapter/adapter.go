// Package adapter defines the contract between the capture pipeline and
// a platform-specific radio adapter. Concrete adapters (BlueZ, CoreBluetooth,
// WinRT, …) are external collaborators and are not implemented here — the
// pipeline only ever depends on this interface, mirroring the teacher's
// split between "the thing that scans" (device.ScanningDevice) and "the
// thing a scan yields" (device.Advertisement).
package adapter

import (
	"context"

	"github.com/srgg/bleobservatory/internal/frame"
)

// RawRecord is the opaque record a scanner task receives from the
// platform adapter for one observed advertisement, before timestamping
// and packet-id assignment happen in the pipeline. Optional fields use
// pointers; the pipeline applies the §6 defaulting rules for any that
// are nil.
type RawRecord struct {
	MAC        [6]byte
	RSSI       int8
	RawPayload []byte

	PHY         *frame.PHY
	Channel     *uint8
	AddressType *frame.AddressType
	FrameType   *frame.Type
}

// Handler receives one RawRecord per advertisement observed by an
// adapter. It must not block for long: the scanner task calls it
// synchronously on the receive path.
type Handler func(RawRecord)

// Adapter is the single capability the core pipeline requires of a
// radio: "produces raw records until told to stop." All platform
// variance (BlueZ, CoreBluetooth, WinRT, a classic HCI dongle) lives
// behind this one interface.
type Adapter interface {
	// Name identifies the adapter for logging/metrics (e.g. "hci0").
	Name() string
	// Scan blocks, invoking handler for every observation, until ctx is
	// canceled or an unrecoverable error occurs.
	Scan(ctx context.Context, handler Handler) error
}

// Discoverer is an optional capability: best-effort one-shot GATT
// service discovery against a specific peripheral. Per the spec's
// Non-goals, the core never establishes a lasting GATT connection;
// this exists only to let a query surface enrich a device with its
// advertised service list when a one-shot probe is worthwhile.
type Discoverer interface {
	// DiscoverServices connects to mac, enumerates services, and
	// disconnects. Implementations must honor ctx's deadline; the core
	// always calls this with a context bounded by ConnectTimeout plus
	// DiscoveryTimeout (see internal/discovery).
	DiscoverServices(ctx context.Context, mac string) ([]string, error)
}
