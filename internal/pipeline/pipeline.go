// Package pipeline implements the capture pipeline (§4.3): one scanner
// task per radio adapter, which timestamps and packet-id-tags each
// record before sending it into a single bounded channel shared by all
// of them, and one dispatcher task that filters and fans accepted frames
// out to the batched writer and the real-time analyzers.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srgg/bleobservatory/internal/adapter"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/ringbuf"
	"github.com/srgg/bleobservatory/internal/taskname"
)

// Consumer receives every accepted (non-duplicate, non-filtered) frame.
// The writer, trend engine, and flow analyzer are all Consumers.
type Consumer interface {
	Consume(frame.Frame)
}

// ConsumerFunc adapts a plain function to Consumer.
type ConsumerFunc func(frame.Frame)

func (f ConsumerFunc) Consume(fr frame.Frame) { f(fr) }

// TimelineKind mirrors the spec's TimelineEvent.kind.
type TimelineKind string

const (
	KindAccepted  TimelineKind = "Accepted"
	KindDuplicate TimelineKind = "Duplicate"
	KindFiltered  TimelineKind = "Filtered"
)

// TimelineRecorder appends one TimelineEvent per pipeline filter-stage
// outcome (§4.7).
type TimelineRecorder interface {
	Record(ts time.Time, mac string, packetID uint64, kind TimelineKind, rssi int8, detail string)
}

// Metrics mirrors the pipeline-facing counters named in §4.3/§4.4.
type Metrics struct {
	PacketsReceived  int64
	PacketsAccepted  int64
	PacketsDropped   int64
	ChannelFullCount int64
	DuplicatesFiltered int64
}

// Pipeline wires adapters, the shared bounded channel, duplicate
// filtering, and fan-out to consumers.
type Pipeline struct {
	cfg      Config
	logger   *logrus.Logger
	channel  *ringbuf.BoundedChannel[frame.Frame]
	consumers []Consumer
	timeline TimelineRecorder

	packetSeq atomic.Uint64

	dupMu   sync.Mutex
	dupLast map[string]time.Time

	metrics Metrics

	shuttingDown atomic.Bool
	wg           sync.WaitGroup

	adapters []adapterEntry
}

type adapterEntry struct {
	a     adapter.Adapter
	state *stateMachine
}

// New constructs a Pipeline. consumers are notified, in registration
// order, of every accepted frame; timeline may be nil to disable
// TimelineEvent recording.
func New(cfg Config, logger *logrus.Logger, consumers []Consumer, timeline TimelineRecorder) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = DefaultConfig().ChannelCapacity
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = 100 * time.Millisecond
	}
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		channel:   ringbuf.New[frame.Frame](cfg.ChannelCapacity, cfg.BackpressureAction),
		consumers: consumers,
		timeline:  timeline,
		dupLast:   make(map[string]time.Time),
	}
}

// AddAdapter registers a radio adapter. It must be called before Run.
func (p *Pipeline) AddAdapter(a adapter.Adapter) {
	if c, ok := a.(Configurable); ok {
		c.ApplyHints(p.cfg.hints())
	}
	p.adapters = append(p.adapters, adapterEntry{a: a, state: newStateMachine()})
}

// Run starts one scanner task per registered adapter plus the
// dispatcher task, and blocks until ctx is canceled. Graceful shutdown
// flushes the dispatcher's in-flight frame and returns within ~1s of
// cancellation (§4.3, §5).
func (p *Pipeline) Run(ctx context.Context) error {
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()

	p.wg.Add(1)
	taskname.Go(dispatchCtx, "dispatcher", func(ctx context.Context) {
		defer p.wg.Done()
		p.dispatchLoop(ctx)
	})

	for i := range p.adapters {
		entry := &p.adapters[i]
		if err := entry.state.Start(); err != nil {
			p.logger.WithError(err).WithField("adapter", entry.a.Name()).Error("failed to start scanner")
			continue
		}
		p.wg.Add(1)
		taskname.Go(ctx, "scanner:"+entry.a.Name(), func(taskCtx context.Context) {
			defer p.wg.Done()
			p.scannerLoop(taskCtx, entry)
		})
	}

	<-ctx.Done()

	p.shuttingDown.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		p.logger.Warn("shutdown budget exceeded, forcing exit")
	}
	return nil
}

func (p *Pipeline) scannerLoop(ctx context.Context, entry *adapterEntry) {
	logger := p.logger.WithField("adapter", entry.a.Name())
	backoff := 100 * time.Millisecond
	attempts := 0

	for {
		if ctx.Err() != nil {
			entry.state.Stop()
			return
		}
		if entry.state.IsPaused() {
			select {
			case <-ctx.Done():
				entry.state.Stop()
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		err := entry.a.Scan(ctx, func(raw adapter.RawRecord) {
			p.handleRaw(entry.a.Name(), raw)
		})
		if err == nil || ctx.Err() != nil {
			entry.state.Stop()
			return
		}

		attempts++
		logger.WithError(err).WithField("attempt", attempts).Warn("adapter transient error")
		if attempts > 3 {
			entry.state.Fail(err)
			logger.WithError(err).Error("adapter marked Error after 3 retries; continuing with other adapters")
			return
		}
		select {
		case <-ctx.Done():
			entry.state.Stop()
			return
		case <-time.After(backoff):
		}
		backoff *= 3
	}
}

// handleRaw timestamps and packet-id-tags a raw record and sends it
// into the shared bounded channel, applying §6's defaulting rules.
func (p *Pipeline) handleRaw(adapterName string, raw adapter.RawRecord) {
	now := time.Now().UnixNano()
	id := p.packetSeq.Add(1)

	phy := frame.Le1M
	if raw.PHY != nil {
		phy = *raw.PHY
	}
	channel := frame.DefaultChannel(raw.MAC)
	if raw.Channel != nil {
		channel = *raw.Channel
	}
	ftype := frame.AdvInd
	if raw.FrameType != nil {
		ftype = *raw.FrameType
	}
	var reportedAddrType frame.AddressType
	if raw.AddressType != nil {
		reportedAddrType = *raw.AddressType
	}

	f := frame.Frame{
		PacketID:    id,
		MAC:         frame.FormatMAC(raw.MAC),
		RSSI:        raw.RSSI,
		TimestampNs: now,
		PHY:         phy,
		Channel:     channel,
		FrameType:   ftype,
		AddressType: frame.ResolveAddressType(raw.MAC, reportedAddrType),
		RawPayload:  raw.RawPayload,
	}

	atomic.AddInt64(&p.metrics.PacketsReceived, 1)

	if p.shuttingDown.Load() {
		atomic.AddInt64(&p.metrics.PacketsDropped, 1)
		return
	}

	dropped := p.channel.Send(context.Background(), f)
	if dropped {
		atomic.AddInt64(&p.metrics.PacketsDropped, 1)
		atomic.AddInt64(&p.metrics.ChannelFullCount, 1)
		if p.cfg.BackpressureAction == ringbuf.DropWithWarning {
			p.logger.WithField("adapter", adapterName).Warn("channel full, dropping packet")
		}
	}
}

func (p *Pipeline) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drainOnce()
			return
		case f, ok := <-p.channel.C():
			if !ok {
				return
			}
			p.dispatch(f)
		}
	}
}

// drainOnce empties any frames still buffered in the channel so a
// graceful shutdown does not silently lose data that already arrived.
func (p *Pipeline) drainOnce() {
	for {
		select {
		case f := <-p.channel.C():
			p.dispatch(f)
		default:
			return
		}
	}
}

func (p *Pipeline) dispatch(f frame.Frame) {
	if p.cfg.FilterDuplicates && p.isDuplicate(f) {
		atomic.AddInt64(&p.metrics.DuplicatesFiltered, 1)
		if p.timeline != nil {
			p.timeline.Record(time.Now(), f.MAC, f.PacketID, KindDuplicate, f.RSSI, "within duplicate window")
		}
		return
	}

	atomic.AddInt64(&p.metrics.PacketsAccepted, 1)
	if p.timeline != nil {
		p.timeline.Record(time.Now(), f.MAC, f.PacketID, KindAccepted, f.RSSI, "")
	}
	for _, c := range p.consumers {
		c.Consume(f)
	}
}

// isDuplicate marks f Duplicate if the previous accepted frame for its
// MAC was within the 100ms window (§4.3, §9(a)).
func (p *Pipeline) isDuplicate(f frame.Frame) bool {
	t := time.Unix(0, f.TimestampNs)

	p.dupMu.Lock()
	defer p.dupMu.Unlock()

	last, ok := p.dupLast[f.MAC]
	if ok && t.Sub(last) < p.cfg.DuplicateWindow {
		return true
	}
	p.dupLast[f.MAC] = t
	return false
}

// Metrics returns a snapshot of pipeline-wide counters.
func (p *Pipeline) Metrics() Metrics {
	return Metrics{
		PacketsReceived:    atomic.LoadInt64(&p.metrics.PacketsReceived),
		PacketsAccepted:    atomic.LoadInt64(&p.metrics.PacketsAccepted),
		PacketsDropped:     atomic.LoadInt64(&p.metrics.PacketsDropped),
		ChannelFullCount:   atomic.LoadInt64(&p.metrics.ChannelFullCount),
		DuplicatesFiltered: atomic.LoadInt64(&p.metrics.DuplicatesFiltered),
	}
}

// AdapterState reports the current ScannerState for a named adapter, or
// "" if no such adapter was registered.
func (p *Pipeline) AdapterState(name string) ScannerState {
	for i := range p.adapters {
		if p.adapters[i].a.Name() == name {
			return p.adapters[i].state.Current()
		}
	}
	return ""
}

// ChannelMetrics exposes the underlying bounded channel's counters,
// primarily for tests asserting liveness under adversarial schedules.
func (p *Pipeline) ChannelMetrics() ringbuf.Metrics {
	return p.channel.GetMetrics()
}
