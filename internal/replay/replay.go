// Package replay provides an Adapter that replays a previously
// exported PCAP capture, for offline pipeline runs (tests, reprocessing
// archived captures) where no live radio adapter is bound.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/srgg/bleobservatory/internal/adapter"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/pcapexport"
)

// PCAPAdapter implements adapter.Adapter by replaying frame records
// from a PCAP file written by internal/pcapexport.
type PCAPAdapter struct {
	Path string
}

// Name implements adapter.Adapter.
func (p *PCAPAdapter) Name() string { return "pcap-replay:" + p.Path }

// Scan implements adapter.Adapter: it streams every record in the
// file to handler in order, stopping early if ctx is canceled, and
// returns nil once the file is exhausted (a replay has no further
// frames to retry, unlike a live radio adapter).
func (p *PCAPAdapter) Scan(ctx context.Context, handler adapter.Handler) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("replay: open %q: %w", p.Path, err)
	}
	defer f.Close()

	imp, err := pcapexport.NewImporter(f)
	if err != nil {
		return fmt.Errorf("replay: read header of %q: %w", p.Path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fr, err := imp.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay: decode record in %q: %w", p.Path, err)
		}

		mac, err := frame.ParseMAC(fr.MAC)
		if err != nil {
			continue
		}
		ft := fr.FrameType
		handler(adapter.RawRecord{
			MAC:        mac,
			RSSI:       fr.RSSI,
			RawPayload: fr.RawPayload,
			FrameType:  &ft,
		})
	}
}
