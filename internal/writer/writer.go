// Package writer implements the batched writer (C4, §4.4): it buffers
// accepted frames and flushes them into the persistent store inside a
// single transaction, triggered by batch size, a timeout, an explicit
// flush, or upstream channel closure.
package writer

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srgg/bleobservatory/internal/adparser"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/registry"
	"github.com/srgg/bleobservatory/internal/store"
)

// Config holds the writer's tunables (§4.4, §6). BatchTimeout carries
// no `default` tag: go-defaults parses integer kinds with strconv, not
// time.ParseDuration, so duration fields are seeded by hand below.
type Config struct {
	BatchSize    int `default:"500"`
	BatchTimeout time.Duration
}

// DefaultConfig returns the §4.4 defaults, applied via struct-tag
// defaults the same way the teacher's test option structs do.
func DefaultConfig() Config {
	cfg := Config{BatchTimeout: 100 * time.Millisecond}
	defaults.SetDefaults(&cfg)
	return cfg
}

// Metrics mirrors the counters named in §4.4.
type Metrics struct {
	PacketsWritten      int64
	PacketsDropped      int64
	WriteErrors         int64
	TotalBatches        int64
	LastWriteDurationMs int64
	totalWritten        int64 // used to compute AvgBatchSize
}

// pending is one buffered (frame, parsed-ad) pair awaiting flush.
type pending struct {
	f      frame.Frame
	parsed *adparser.ParsedAd
}

// Writer is the single serialized task writing into the store.
type Writer struct {
	cfg    Config
	db     *sql.DB
	logger *logrus.Logger

	mu      sync.Mutex
	buf     []pending
	oldest  time.Time

	flushCh chan struct{}

	metrics Metrics
}

// New constructs a Writer against an already-open store connection
// (opened with the §4.4 PRAGMAs already applied).
func New(cfg Config, db *sql.DB, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Writer{
		cfg:     cfg,
		db:      db,
		logger:  logger,
		flushCh: make(chan struct{}, 1),
	}
}

// Consume implements pipeline.Consumer. ParsedAd enrichment is supplied
// by calling ConsumeParsed directly when the caller has already run the
// AD parser (the common case); Consume alone buffers with no parsed
// fields.
func (w *Writer) Consume(f frame.Frame) {
	w.ConsumeParsed(f, nil)
}

// ConsumeParsed buffers f (with its already-decoded ParsedAd, used for
// device-name/service seeding) for the next flush.
func (w *Writer) ConsumeParsed(f frame.Frame, parsed *adparser.ParsedAd) {
	w.mu.Lock()
	if len(w.buf) == 0 {
		w.oldest = time.Now()
	}
	w.buf = append(w.buf, pending{f: f, parsed: parsed})
	shouldFlush := len(w.buf) >= w.cfg.BatchSize
	w.mu.Unlock()

	if shouldFlush {
		w.requestFlush()
	}
}

func (w *Writer) requestFlush() {
	select {
	case w.flushCh <- struct{}{}:
	default:
	}
}

// Flush forces an immediate flush regardless of batch size/timeout
// (the "Flush control" trigger in §4.4).
func (w *Writer) Flush(ctx context.Context) error {
	return w.flushNow(ctx)
}

// Run drives the timeout-triggered flush on a ticker until ctx is
// canceled, at which point it performs one final flush (the "upstream
// channel closed" trigger).
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.flushNow(context.Background())
			return
		case <-w.flushCh:
			_ = w.flushNow(ctx)
		case <-ticker.C:
			w.mu.Lock()
			due := len(w.buf) > 0 && time.Since(w.oldest) >= w.cfg.BatchTimeout
			w.mu.Unlock()
			if due {
				_ = w.flushNow(ctx)
			}
		}
	}
}

func (w *Writer) flushNow(ctx context.Context) error {
	w.mu.Lock()
	batch := w.buf
	w.buf = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := w.commitBatch(ctx, batch)
	if err != nil {
		w.logger.WithError(err).Warn("batch commit failed, re-queueing once")
		err = w.commitBatch(ctx, batch)
		if err != nil {
			atomic.AddInt64(&w.metrics.WriteErrors, 1)
			w.logger.WithError(err).Error("batch commit failed twice, dropping batch")
			atomic.AddInt64(&w.metrics.PacketsDropped, int64(len(batch)))
			return err
		}
	}

	atomic.AddInt64(&w.metrics.PacketsWritten, int64(len(batch)))
	atomic.AddInt64(&w.metrics.TotalBatches, 1)
	atomic.AddInt64(&w.metrics.totalWritten, int64(len(batch)))
	atomic.StoreInt64(&w.metrics.LastWriteDurationMs, time.Since(start).Milliseconds())
	return nil
}

// commitBatch opens a single transaction, inserts every pending frame
// row and performs its device upsert in the same transaction (§4.4's
// "both must be in the same transaction" invariant), then commits.
func (w *Writer) commitBatch(ctx context.Context, batch []pending) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("writer: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range batch {
		deviceID, err := registry.Upsert(ctx, tx, p.f, p.parsed)
		if err != nil {
			return err
		}

		parsedOK := p.parsed == nil || p.parsed.ParsedSuccessfully
		ts := time.Unix(0, p.f.TimestampNs)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO frames
				(device_id, mac, rssi, advertising_data, phy, channel, frame_type,
				 parsed_successfully, timestamp, timestamp_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			deviceID, p.f.MAC, p.f.RSSI, hex.EncodeToString(p.f.RawPayload), string(p.f.PHY),
			p.f.Channel, string(p.f.FrameType), parsedOK, store.ISO8601(ts), store.MillisOf(ts))
		if err != nil {
			return fmt.Errorf("writer: insert frame for %s: %w", p.f.MAC, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("writer: commit batch of %d: %w", len(batch), err)
	}
	return nil
}

// Snapshot returns a consistent copy of the writer's counters,
// including avg_batch_size (§4.4).
func (w *Writer) Snapshot() (m Metrics, avgBatchSize float64) {
	m = Metrics{
		PacketsWritten:      atomic.LoadInt64(&w.metrics.PacketsWritten),
		PacketsDropped:      atomic.LoadInt64(&w.metrics.PacketsDropped),
		WriteErrors:         atomic.LoadInt64(&w.metrics.WriteErrors),
		TotalBatches:        atomic.LoadInt64(&w.metrics.TotalBatches),
		LastWriteDurationMs: atomic.LoadInt64(&w.metrics.LastWriteDurationMs),
	}
	batches := atomic.LoadInt64(&w.metrics.TotalBatches)
	written := atomic.LoadInt64(&w.metrics.totalWritten)
	if batches > 0 {
		avgBatchSize = float64(written) / float64(batches)
	}
	return m, avgBatchSize
}
