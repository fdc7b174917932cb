package pipeline

import (
	"time"

	"github.com/mcuadros/go-defaults"

	"github.com/srgg/bleobservatory/internal/ringbuf"
)

// Config holds the tunables enumerated in §6 that govern the capture
// pipeline (the batched writer's tunables live in internal/writer).
type Config struct {
	ChannelCapacity    int           `yaml:"channel_capacity" default:"10000"`
	FilterDuplicates   bool          `yaml:"filter_duplicates" default:"true"`
	DuplicateWindow    time.Duration `yaml:"-"` // fixed at 100ms per §9(a); not operator-tunable
	ScanDuration       time.Duration `yaml:"scan_duration" default:"0"`
	NumCycles          int           `yaml:"num_cycles" default:"0"` // 0 = infinite
	BackpressureAction ringbuf.Policy `yaml:"backpressure_action"`

	UseExtended     bool `yaml:"use_extended"`
	UseAllPHYs      bool `yaml:"use_all_phys"`
	ActiveScanning  bool `yaml:"active_scanning" default:"true"`
	BLEEnabled      bool `yaml:"ble_enabled" default:"true"`
	ClassicEnabled  bool `yaml:"classic_enabled"`
}

// DefaultConfig returns the pipeline defaults named in §6, applied via
// struct-tag defaults the same way the teacher's test option structs do.
func DefaultConfig() Config {
	cfg := Config{DuplicateWindow: 100 * time.Millisecond, BackpressureAction: ringbuf.DropOldest}
	defaults.SetDefaults(&cfg)
	return cfg
}

// AdapterHints carries the adapter-facing tunables (§6) to any Adapter
// implementation that opts in to receiving them.
type AdapterHints struct {
	UseExtended    bool
	UseAllPHYs     bool
	ActiveScanning bool
	BLEEnabled     bool
	ClassicEnabled bool
}

// Configurable is an optional capability an Adapter may implement to
// receive adapter hints before scanning starts.
type Configurable interface {
	ApplyHints(AdapterHints)
}

func (c Config) hints() AdapterHints {
	return AdapterHints{
		UseExtended:    c.UseExtended,
		UseAllPHYs:     c.UseAllPHYs,
		ActiveScanning: c.ActiveScanning,
		BLEEnabled:     c.BLEEnabled,
		ClassicEnabled: c.ClassicEnabled,
	}
}
