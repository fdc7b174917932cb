// Package flowanalysis implements the event & flow analyzer (C7, §4.7):
// a bounded global timeline of filter-stage outcomes, per-device
// inter-packet behavior statistics, anomaly detection, cross-device
// temporal correlation, and a data-flow/protocol estimator.
package flowanalysis

import (
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/srgg/bleobservatory/internal/pipeline"
)

// TimelineCapacity is the fixed global ring size from §3.
const TimelineCapacity = 10_000

// TimelineEvent mirrors §3's TimelineEvent record.
type TimelineEvent struct {
	TimestampMs int64
	MAC         string
	PacketID    uint64
	Kind        pipeline.TimelineKind
	RSSI        int8
	Detail      string
}

// Timeline is the bounded, oldest-evicted-on-overflow global event log.
// It is built on the same lock-free overlapped ring buffer the teacher
// uses for its Lua output collector (internal/lua.LuaOutputCollector) —
// an append-mostly, periodically-drained bounded log is exactly that
// library's shape.
type Timeline struct {
	buf mpmc.RichOverlappedRingBuffer[TimelineEvent]
}

// NewTimeline constructs a Timeline with the §3 capacity.
func NewTimeline() *Timeline {
	return &Timeline{buf: mpmc.NewOverlappedRingBuffer[TimelineEvent](TimelineCapacity)}
}

// Record implements pipeline.TimelineRecorder.
func (tl *Timeline) Record(ts time.Time, mac string, packetID uint64, kind pipeline.TimelineKind, rssi int8, detail string) {
	_, _ = tl.buf.EnqueueM(TimelineEvent{
		TimestampMs: ts.UnixMilli(),
		MAC:         mac,
		PacketID:    packetID,
		Kind:        kind,
		RSSI:        rssi,
		Detail:      detail,
	})
}

// Drain removes and returns every event currently buffered, oldest
// first. Analyzers call this periodically to build their working set;
// long-lived analysis state lives in the per-device accumulators in
// behavior.go, not in the ring itself.
func (tl *Timeline) Drain() []TimelineEvent {
	var out []TimelineEvent
	for !tl.buf.IsEmpty() {
		ev, err := tl.buf.Dequeue()
		if err != nil {
			break
		}
		out = append(out, ev)
	}
	return out
}
