package flowanalysis

// AnomalyType names the §4.7 anomaly kinds.
type AnomalyType string

const (
	GapInTransmission AnomalyType = "GapInTransmission"
	RssiDropout       AnomalyType = "RssiDropout"
)

// Anomaly is one detected deviation in a device's observed stream.
type Anomaly struct {
	Type       AnomalyType
	Severity   float64
	IntervalMs float64
	RSSIDelta  int
}

// detectAnomalies applies §4.7's two anomaly rules over an ordered
// event slice and its mean inter-packet interval.
func detectAnomalies(evs []event, meanIntervalMs float64) []Anomaly {
	var out []Anomaly
	for i := 1; i < len(evs); i++ {
		interval := float64(evs[i].tMs - evs[i-1].tMs)
		if meanIntervalMs > 0 && interval > 2.5*meanIntervalMs {
			severity := (interval - 2.5*meanIntervalMs) / (2.5 * meanIntervalMs)
			if severity > 1 {
				severity = 1
			}
			out = append(out, Anomaly{Type: GapInTransmission, Severity: severity, IntervalMs: interval})
		}

		delta := int(evs[i].rssi) - int(evs[i-1].rssi)
		if abs(delta) > 20 {
			severity := float64(abs(delta)) / 60
			if severity > 1 {
				severity = 1
			}
			out = append(out, Anomaly{Type: RssiDropout, Severity: severity, RSSIDelta: delta})
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
