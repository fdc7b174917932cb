package flowanalysis

// CorrelationStrength classifies a device pair's coincidence count.
type CorrelationStrength string

const (
	CorrNone       CorrelationStrength = "None"
	CorrWeak       CorrelationStrength = "Weak"
	CorrModerate   CorrelationStrength = "Moderate"
	CorrStrong     CorrelationStrength = "Strong"
	CorrVeryStrong CorrelationStrength = "VeryStrong"
)

// Correlation is one unordered device-pair's §4.7 temporal
// correlation report.
type Correlation struct {
	MAC1, MAC2  string
	Coincident  int
	Strength    CorrelationStrength
	Coefficient float64
}

const coincidenceWindowMs = 100

// Correlate computes the temporal correlation between every pair of
// tracked devices. It is O(devices^2 * events) and intended to run
// over the Analyzer's current working set, not on every frame.
func (a *Analyzer) Correlate() []Correlation {
	a.mu.RLock()
	macs := make([]string, 0, len(a.devices))
	snap := make(map[string][]event, len(a.devices))
	for mac, d := range a.devices {
		d.mu.Lock()
		evs := make([]event, len(d.events))
		copy(evs, d.events)
		d.mu.Unlock()
		macs = append(macs, mac)
		snap[mac] = evs
	}
	a.mu.RUnlock()

	var out []Correlation
	for i := 0; i < len(macs); i++ {
		for j := i + 1; j < len(macs); j++ {
			m1, m2 := macs[i], macs[j]
			e1, e2 := snap[m1], snap[m2]
			coincident := countCoincident(e1, e2)
			denom := len(e1)
			if len(e2) > denom {
				denom = len(e2)
			}
			coeff := 0.0
			if denom > 0 {
				coeff = float64(coincident) / float64(denom)
			}
			out = append(out, Correlation{
				MAC1: m1, MAC2: m2,
				Coincident:  coincident,
				Strength:    classifyStrength(coincident),
				Coefficient: coeff,
			})
		}
	}
	return out
}

func countCoincident(e1, e2 []event) int {
	count := 0
	j0 := 0
	for _, a := range e1 {
		for j := j0; j < len(e2); j++ {
			d := a.tMs - e2[j].tMs
			if d > coincidenceWindowMs {
				j0 = j + 1
				continue
			}
			if d < -coincidenceWindowMs {
				break
			}
			count++
		}
	}
	return count
}

func classifyStrength(coincident int) CorrelationStrength {
	switch {
	case coincident == 0:
		return CorrNone
	case coincident <= 2:
		return CorrWeak
	case coincident <= 5:
		return CorrModerate
	case coincident <= 10:
		return CorrStrong
	default:
		return CorrVeryStrong
	}
}
