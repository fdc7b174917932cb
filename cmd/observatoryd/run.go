package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srgg/bleobservatory/internal/adparser"
	"github.com/srgg/bleobservatory/internal/config"
	"github.com/srgg/bleobservatory/internal/flowanalysis"
	"github.com/srgg/bleobservatory/internal/frame"
	"github.com/srgg/bleobservatory/internal/pipeline"
	"github.com/srgg/bleobservatory/internal/replay"
	"github.com/srgg/bleobservatory/internal/store"
	"github.com/srgg/bleobservatory/internal/taskname"
	"github.com/srgg/bleobservatory/internal/telemetry"
	"github.com/srgg/bleobservatory/internal/trend"
	"github.com/srgg/bleobservatory/internal/writer"
)

var (
	runStorePath  string
	runImportPCAP string
	runMaxDevices int
	runDumpConfig bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the capture pipeline",
	Long: `Starts the capture pipeline: one task per adapter, a dispatcher,
a batched writer and a periodic telemetry snapshotter. Without a live
adapter bound, pass --import-pcap to replay a previously exported
capture through the full pipeline (parsing, persistence, trend
analysis and protocol classification) for offline processing. Filter
outcomes are recorded on the event timeline; that timeline is not fed
into the behavior/correlation statistics in this process.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runStorePath, "store", "", "Path to the SQLite store (default: config default)")
	runCmd.Flags().StringVar(&runImportPCAP, "import-pcap", "", "Replay frames from a PCAP file instead of a live adapter")
	runCmd.Flags().IntVar(&runMaxDevices, "max-devices", 0, "Override max_devices_tracked (0: use config default)")
	runCmd.Flags().BoolVar(&runDumpConfig, "dump-config", false, "Print the resolved configuration as YAML and exit")
}

// analysisConsumer fans one accepted frame out to AD parsing and the
// writer (which takes the parsed result for service seeding), and to
// C6's trend engine, C7's analyzer and C9's telemetry counters, which
// take the frame itself.
type analysisConsumer struct {
	w        *writer.Writer
	trendEng *trend.Engine
	analyzer *flowanalysis.Analyzer
	snap     *telemetry.Snapshotter
}

func (c *analysisConsumer) Consume(f frame.Frame) {
	parsed := adparser.Parse(f.RawPayload)
	c.w.ConsumeParsed(f, parsed)
	c.trendEng.Update(f.MAC, f.TimestampSeconds(), float64(f.RSSI))
	c.analyzer.ObserveFrame(f.MAC, f.RawPayload)
	c.snap.Observe(f)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg := config.DefaultConfig()
	if runStorePath != "" {
		cfg.StorePath = runStorePath
	}
	if runMaxDevices > 0 {
		cfg.MaxDevicesTracked = runMaxDevices
	}

	if runDumpConfig {
		out, err := cfg.Dump()
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	db, err := store.Open(context.Background(), cfg.StorePath, store.DefaultTuning())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer db.Close()

	trendEngine := trend.NewEngine()
	analyzer := flowanalysis.NewAnalyzer()
	timeline := flowanalysis.NewTimeline()
	snap := telemetry.New(db, logger)
	w := writer.New(cfg.Writer, db, logger)

	consumer := &analysisConsumer{w: w, trendEng: trendEngine, analyzer: analyzer, snap: snap}
	p := pipeline.New(cfg.Pipeline, logger, []pipeline.Consumer{consumer}, timeline)

	if runImportPCAP != "" {
		p.AddAdapter(&replay.PCAPAdapter{Path: runImportPCAP})
	} else {
		logger.Warn("no live adapter configured; pass --import-pcap to replay a capture")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-forceCh
		<-forceCh
		logger.Warn("second interrupt received, exiting immediately")
		os.Exit(1)
	}()

	taskname.Go(ctx, "writer", func(ctx context.Context) { w.Run(ctx) })
	taskname.Go(ctx, "snapshotter", func(ctx context.Context) { snap.Run(ctx) })

	if err := p.Run(ctx); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Flush(shutdownCtx); err != nil {
		logger.WithError(err).Warn("final flush failed")
	}

	return nil
}
