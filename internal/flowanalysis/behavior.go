package flowanalysis

import (
	"math"
	"sort"
	"sync"

	"github.com/srgg/bleobservatory/internal/pipeline"
)

// Pattern classifies a device's inter-packet timing regularity.
type Pattern string

const (
	Regular        Pattern = "Regular"
	Bursty         Pattern = "Bursty"
	Random         Pattern = "Random"
	PatternUnknown Pattern = "Unknown"
)

// RSSITrend classifies a device's historical (thirds-based) signal
// trend — a second, independent trend notion from trend.Trend (§4.6
// vs §4.7's historical analysis serve different queries: the
// real-time window feeds live trend/motion, this feeds the behavior
// report).
type RSSITrend string

const (
	Improving        RSSITrend = "Improving"
	Degrading        RSSITrend = "Degrading"
	Volatile          RSSITrend = "Volatile"
	Stable            RSSITrend = "Stable"
	RSSITrendUnknown RSSITrend = "Unknown"
)

// Behavior is one device's §4.7 behavior-analysis report.
type Behavior struct {
	MAC            string
	EventCount     int
	MeanIntervalMs float64
	StdDevMs       float64
	CV             float64
	Regularity     float64
	FrequencyHz    float64
	Pattern        Pattern
	RSSITrend      RSSITrend
	Variance       float64
	StabilityScore float64
	Anomalies      []Anomaly
}

// event is one accumulated accepted-frame observation for a MAC.
type event struct {
	tMs  int64
	rssi int8
}

// deviceEvents is the mutex-guarded per-device accumulator. Behavior
// is derived fresh from the stored events on each query rather than
// incrementally, since §4.7's statistics (mean, stddev, thirds) are
// not cheaply incremental. The per-device event list is not capped: it
// grows with every ingested accepted event.
type deviceEvents struct {
	mu     sync.Mutex
	events []event
}

// Analyzer accumulates per-device timelines drained from a Timeline
// and computes §4.7's behavior, anomaly, correlation and data-flow
// reports on demand.
type Analyzer struct {
	mu      sync.RWMutex
	devices map[string]*deviceEvents
	flows   map[string]*flowRing
}

// NewAnalyzer constructs an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		devices: make(map[string]*deviceEvents),
		flows:   make(map[string]*flowRing),
	}
}

// Ingest folds a batch of drained TimelineEvents into the per-device
// accumulators. Only Accepted-kind events participate in the behavior
// statistics; duplicates/filtered events are recorded for visibility
// but excluded from §4.7's interval math, which is defined over
// "accepted events".
func (a *Analyzer) Ingest(events []TimelineEvent) {
	for _, ev := range events {
		if ev.Kind != pipeline.KindAccepted {
			continue
		}
		a.deviceFor(ev.MAC).add(ev.TimestampMs, ev.RSSI)
	}
}

func (a *Analyzer) deviceFor(mac string) *deviceEvents {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.devices[mac]
	if !ok {
		d = &deviceEvents{}
		a.devices[mac] = d
	}
	return d
}

func (d *deviceEvents) add(tMs int64, rssi int8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event{tMs: tMs, rssi: rssi})
	sort.Slice(d.events, func(i, j int) bool { return d.events[i].tMs < d.events[j].tMs })
}

// Behavior computes the §4.7 report for mac. The second return value
// is false if fewer than 2 accepted events have been observed.
func (a *Analyzer) Behavior(mac string) (Behavior, bool) {
	a.mu.RLock()
	d, ok := a.devices[mac]
	a.mu.RUnlock()
	if !ok {
		return Behavior{}, false
	}

	d.mu.Lock()
	evs := make([]event, len(d.events))
	copy(evs, d.events)
	d.mu.Unlock()

	if len(evs) < 2 {
		return Behavior{}, false
	}

	intervals := make([]float64, 0, len(evs)-1)
	for i := 1; i < len(evs); i++ {
		intervals = append(intervals, float64(evs[i].tMs-evs[i-1].tMs))
	}
	meanI := mean(intervals)
	sdI := math.Sqrt(populationVariance(intervals))
	cv := math.Inf(1)
	if meanI != 0 {
		cv = sdI / meanI
	}
	regularity := math.Max(0, 1-math.Min(cv, 1))
	freq := 0.0
	if meanI != 0 {
		freq = 1000 / meanI
	}

	var pattern Pattern
	switch {
	case cv <= 0.2:
		pattern = Regular
	case cv > 2.0:
		pattern = Bursty
	default:
		pattern = Random
	}

	rssi := make([]float64, len(evs))
	for i, e := range evs {
		rssi[i] = float64(e.rssi)
	}
	trend, variance := rssiTrendOfThirds(rssi)
	stability := math.Max(0, 100-math.Min(variance, 100))

	return Behavior{
		MAC:            mac,
		EventCount:     len(evs),
		MeanIntervalMs: meanI,
		StdDevMs:       sdI,
		CV:             cv,
		Regularity:     regularity,
		FrequencyHz:    freq,
		Pattern:        pattern,
		RSSITrend:      trend,
		Variance:       variance,
		StabilityScore: stability,
		Anomalies:      detectAnomalies(evs, meanI),
	}, true
}

// rssiTrendOfThirds implements §4.7's thirds-based trend: first-third
// mean vs last-third mean, gated by population variance.
func rssiTrendOfThirds(rssi []float64) (RSSITrend, float64) {
	n := len(rssi)
	variance := populationVariance(rssi)
	if variance > 15.0 {
		return Volatile, variance
	}
	third := n / 3
	if third == 0 {
		third = 1
	}
	a := mean(rssi[:third])
	b := mean(rssi[n-third:])
	switch {
	case b-a > 5:
		return Improving, variance
	case a-b > 5:
		return Degrading, variance
	default:
		return Stable, variance
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func populationVariance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}
