package query

import (
	"context"

	"github.com/srgg/bleobservatory/internal/flowanalysis"
	"github.com/srgg/bleobservatory/internal/telemetry"
	"github.com/srgg/bleobservatory/internal/trend"
)

// TrendStateSummary accompanies get_all_trend_states with aggregate
// counts, so a caller doesn't need to re-walk the per-device map just
// to answer "how many devices are approaching".
type TrendStateSummary struct {
	Approaching int
	Leaving     int
	Stable      int
	Unknown     int
}

// AllTrendStates is get_all_trend_states's result.
type AllTrendStates struct {
	PerDevice map[string]trend.Snapshot
	Summary   TrendStateSummary
}

// GetTrendState implements §4.8's get_trend_state: the live C6
// snapshot for one device.
func (s *Surface) GetTrendState(ctx context.Context, mac string) (trend.Snapshot, error) {
	norm, err := normalizeMAC(mac)
	if err != nil {
		return trend.Snapshot{}, err
	}
	snap, _ := s.trendEng.Snapshot(norm)
	return snap, nil
}

// GetAllTrendStates implements §4.8's get_all_trend_states.
func (s *Surface) GetAllTrendStates(ctx context.Context) AllTrendStates {
	all := s.trendEng.AllSnapshots()
	summary := TrendStateSummary{}
	for _, snap := range all {
		switch snap.Trend {
		case trend.Approaching:
			summary.Approaching++
		case trend.Leaving:
			summary.Leaving++
		case trend.Stable:
			summary.Stable++
		default:
			summary.Unknown++
		}
	}
	return AllTrendStates{PerDevice: all, Summary: summary}
}

// GetTelemetry implements §4.8's get_telemetry: the current in-memory
// TelemetrySnapshot.
func (s *Surface) GetTelemetry(ctx context.Context) telemetry.Snapshot {
	return s.snap.Current()
}

// GetDeviceBehavior surfaces C7's per-device behavior report. Not one
// of §4.8's named operations, but the presentation layer needs
// somewhere to read the analyzer's output; this is that seam.
func (s *Surface) GetDeviceBehavior(ctx context.Context, mac string) (flowanalysis.Behavior, error) {
	norm, err := normalizeMAC(mac)
	if err != nil {
		return flowanalysis.Behavior{}, err
	}
	beh, _ := s.analyzer.Behavior(norm)
	return beh, nil
}

// GetCorrelations surfaces C7's cross-device temporal correlation report.
func (s *Surface) GetCorrelations(ctx context.Context) []flowanalysis.Correlation {
	return s.analyzer.Correlate()
}
