package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srgg/bleobservatory/internal/adapter"
	"github.com/srgg/bleobservatory/internal/frame"
)

// scriptedAdapter emits a fixed list of records once, then blocks until
// ctx is canceled.
type scriptedAdapter struct {
	name    string
	records []adapter.RawRecord
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Scan(ctx context.Context, handler adapter.Handler) error {
	for _, r := range a.records {
		handler(r)
	}
	<-ctx.Done()
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestDuplicateFiltering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilterDuplicates = true

	var mu sync.Mutex
	var got []frame.Frame
	consumer := ConsumerFunc(func(f frame.Frame) {
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
	})

	p := New(cfg, quietLogger(), []Consumer{consumer}, nil)
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	p.AddAdapter(&scriptedAdapter{name: "a", records: []adapter.RawRecord{
		{MAC: mac, RSSI: -50, RawPayload: []byte{1}},
		{MAC: mac, RSSI: -51, RawPayload: []byte{2}}, // within 100ms: duplicate
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d accepted frames, want 1 (second should be filtered as duplicate)", len(got))
	}

	m := p.Metrics()
	if m.DuplicatesFiltered != 1 {
		t.Errorf("DuplicatesFiltered = %d, want 1", m.DuplicatesFiltered)
	}
	if m.PacketsAccepted != 1 {
		t.Errorf("PacketsAccepted = %d, want 1", m.PacketsAccepted)
	}
}

// TestBackpressureNeverBlocksProducer is a liveness property: with a
// channel capacity far smaller than the burst size and DropOldest
// backpressure, Run must still complete within its shutdown budget
// rather than deadlock on a full channel.
func TestBackpressureNeverBlocksProducer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelCapacity = 4
	cfg.BackpressureAction = 0 // DropOldest
	cfg.FilterDuplicates = false

	var records []adapter.RawRecord
	for i := 0; i < 500; i++ {
		records = append(records, adapter.RawRecord{
			MAC:  [6]byte{1, 2, 3, 4, 5, byte(i)},
			RSSI: -40,
		})
	}

	p := New(cfg, quietLogger(), []Consumer{ConsumerFunc(func(frame.Frame) {})}, nil)
	p.AddAdapter(&scriptedAdapter{name: "burst", records: records})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline.Run did not return: suspected deadlock under backpressure")
	}

	m := p.ChannelMetrics()
	if m.Written == 0 {
		t.Error("expected at least some records written to the channel")
	}
}
