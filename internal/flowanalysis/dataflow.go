package flowanalysis

import (
	"math"
	"sync"

	"github.com/srgg/bleobservatory/internal/adparser"
)

// ConnectionState is the data-flow estimator's inferred per-device
// link state.
type ConnectionState string

const (
	Advertising       ConnectionState = "Advertising"
	DisconnectedIdle  ConnectionState = "DisconnectedIdle"
	Connected         ConnectionState = "Connected"
	DataTransfer      ConnectionState = "DataTransfer"
	ConnStateUnknown  ConnectionState = "Unknown"
)

const (
	flowRingCapacity  = 1000
	flowRingEvictBulk = 100
)

// flowRing is the per-device ring of the protocol classifications of
// recent raw payloads, used for the protocol majority vote (capacity
// 1000, drop-oldest-100 on overflow). Each entry is only the
// ProtocolType; the observation's timestamp, payload size, RSSI and raw
// bytes are not kept. Eviction is a bulk eviction rather than one-at-a-
// time, trading eviction frequency for amortized cost, the same
// tradeoff the teacher's RingChannel makes by overwriting in place
// rather than shifting).
type flowRing struct {
	mu     sync.Mutex
	buf    []adparser.ProtocolType
	counts map[adparser.ProtocolType]int
}

// ObserveFrame classifies raw against the vendor signature table and
// folds the result into the ring, evicting the oldest 100 entries in
// bulk when the ring is full.
func (a *Analyzer) ObserveFrame(mac string, raw []byte) {
	a.flowFor(mac).observeProtocol(adparser.MatchVendorSignature(raw))
}

func (a *Analyzer) flowFor(mac string) *flowRing {
	a.mu.Lock()
	defer a.mu.Unlock()
	fr, ok := a.flows[mac]
	if !ok {
		fr = &flowRing{counts: make(map[adparser.ProtocolType]int)}
		a.flows[mac] = fr
	}
	return fr
}

func (fr *flowRing) observeProtocol(p adparser.ProtocolType) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if len(fr.buf) >= flowRingCapacity {
		evict := fr.buf[:flowRingEvictBulk]
		for _, old := range evict {
			fr.counts[old]--
		}
		fr.buf = append(fr.buf[:0], fr.buf[flowRingEvictBulk:]...)
	}
	fr.buf = append(fr.buf, p)
	fr.counts[p]++
}

func (fr *flowRing) majorityProtocol() adparser.ProtocolType {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	best := adparser.ProtocolUnknown
	bestCount := 0
	for p, c := range fr.counts {
		if c > bestCount {
			best, bestCount = p, c
		}
	}
	return best
}

// DataFlow is the §4.7 data-flow estimator's per-device output.
type DataFlow struct {
	MAC             string
	Protocol        adparser.ProtocolType
	ConnectionState ConnectionState
	Reliability     float64
}

// DataFlow computes the data-flow estimate for mac from its
// accumulated behavior statistics and protocol ring. It returns false
// if mac has fewer than 2 accumulated accepted events.
func (a *Analyzer) DataFlow(mac string) (DataFlow, bool) {
	beh, ok := a.Behavior(mac)
	if !ok {
		return DataFlow{}, false
	}

	var state ConnectionState
	switch {
	case beh.FrequencyHz > 10 && beh.MeanIntervalMs < 50:
		state = DataTransfer
	case beh.FrequencyHz > 10:
		state = Connected
	case beh.FrequencyHz > 2:
		state = Connected
	default:
		state = DisconnectedIdle
	}

	rssiStd := math.Sqrt(beh.Variance)
	reliability := math.Max(0, (50-math.Min(rssiStd, 50))/50)

	a.mu.RLock()
	fr := a.flows[mac]
	a.mu.RUnlock()
	protocol := adparser.ProtocolUnknown
	if fr != nil {
		protocol = fr.majorityProtocol()
	}

	return DataFlow{
		MAC:             mac,
		Protocol:        protocol,
		ConnectionState: state,
		Reliability:     reliability,
	}, true
}
