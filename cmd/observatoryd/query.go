package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srgg/bleobservatory/internal/bledb"
	"github.com/srgg/bleobservatory/internal/flowanalysis"
	"github.com/srgg/bleobservatory/internal/query"
	"github.com/srgg/bleobservatory/internal/store"
	"github.com/srgg/bleobservatory/internal/telemetry"
	"github.com/srgg/bleobservatory/internal/trend"
)

var (
	queryStorePath string
	queryFormat    string
	queryPage      int
	queryPageSize  int
	queryHours     int
	queryLimit     int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read-only queries against a store",
	Long: `The query command group opens a separate reader connection pool on a
store (not in SQLite read-only mode; the commands only read) and serves
the same operations the in-process query surface (C8) exposes to a
presentation layer: device listings, history, RSSI trend, live trend
state and telemetry. It reads only what "run" has already persisted —
it never observes live traffic.`,
}

func init() {
	queryCmd.PersistentFlags().StringVar(&queryStorePath, "store", "bleobservatory.db", "Path to the SQLite store")
	queryCmd.PersistentFlags().StringVarP(&queryFormat, "format", "f", "table", "Output format (table, json)")

	queryCmd.AddCommand(listDevicesCmd, getDeviceCmd, historyCmd, rssiTrendCmd, rawRSSICmd, telemetryCmd, trendStatesCmd)

	listDevicesCmd.Flags().IntVar(&queryPage, "page", 1, "Page number")
	listDevicesCmd.Flags().IntVar(&queryPageSize, "page-size", 50, "Page size (max 100)")

	historyCmd.Flags().IntVar(&queryLimit, "limit", 100, "Max rows to return")
	rawRSSICmd.Flags().IntVar(&queryLimit, "limit", 100, "Max readings to return")
	rssiTrendCmd.Flags().IntVar(&queryHours, "hours", 24, "Lookback window in hours")
}

// openSurface opens a reader pool on the store and builds a query.Surface
// over fresh, empty live-state components: a standalone query
// invocation has no running pipeline, so get_trend_state/get_telemetry
// and the supplemental behavior/correlation ops report "no data yet"
// rather than panicking, while the DB-backed ops work normally.
func openSurface() (*query.Surface, func(), error) {
	db, err := store.OpenReader(queryStorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	surf := query.New(db, trend.NewEngine(), flowanalysis.NewAnalyzer(), telemetry.New(db, nil))
	return surf, func() { db.Close() }, nil
}

var listDevicesCmd = &cobra.Command{
	Use:   "list-devices",
	Short: "List known devices, most recently seen first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		surf, closeFn, err := openSurface()
		if err != nil {
			return err
		}
		defer closeFn()

		page, err := surf.ListDevices(context.Background(), queryPage, queryPageSize)
		if err != nil {
			return err
		}

		if queryFormat == "json" {
			return writeJSON(page)
		}

		w := newTableWriter()
		fmt.Fprintf(w, "page %d/%d (page size %d)\n\n", page.Page, (page.TotalCount+page.PageSize-1)/page.PageSize, page.PageSize)
		fmt.Fprintln(w, "MAC\tNAME\tRSSI\tDETECTIONS\tLAST SEEN")
		for _, d := range page.Devices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				d.MAC, truncate(d.Name, 20), colorRSSI(int(d.CurrentRSSI)), d.DetectionCount, d.LastSeen.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var getDeviceCmd = &cobra.Command{
	Use:   "get-device <mac>",
	Short: "Show one device's detail record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		surf, closeFn, err := openSurface()
		if err != nil {
			return err
		}
		defer closeFn()

		dev, err := surf.GetDevice(context.Background(), args[0])
		if err != nil {
			return err
		}

		if queryFormat == "json" {
			return writeJSON(dev)
		}

		w := newTableWriter()
		fmt.Fprintf(w, "MAC\t%s\n", dev.MAC)
		fmt.Fprintf(w, "Name\t%s\n", dev.Name)
		fmt.Fprintf(w, "RSSI\t%s\n", colorRSSI(int(dev.CurrentRSSI)))
		fmt.Fprintf(w, "First seen\t%s\n", dev.FirstSeen.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Last seen\t%s\n", dev.LastSeen.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Detections\t%d\n", dev.DetectionCount)
		fmt.Fprintf(w, "MAC type\t%s\n", dev.MACType)
		fmt.Fprintf(w, "Security level\t%s\n", dev.SecurityLevel)
		if dev.ManufacturerName != "" {
			fmt.Fprintf(w, "Manufacturer\t%s\n", dev.ManufacturerName)
		}
		for _, uuid := range dev.Services {
			if name := bledb.LookupService(uuid); name != "" {
				fmt.Fprintf(w, "Service\t%s (%s)\n", uuid, name)
			} else {
				fmt.Fprintf(w, "Service\t%s\n", uuid)
			}
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <mac>",
	Short: "Show a device's recent frames and scan history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		surf, closeFn, err := openSurface()
		if err != nil {
			return err
		}
		defer closeFn()

		hist, err := surf.GetDeviceHistory(context.Background(), args[0], queryLimit)
		if err != nil {
			return err
		}
		if queryFormat == "json" {
			return writeJSON(hist)
		}

		w := newTableWriter()
		fmt.Fprintln(w, "TIMESTAMP\tRSSI")
		for _, f := range hist.Frames {
			fmt.Fprintf(w, "%d\t%s\n", f.TimestampMs, colorRSSI(int(f.RSSI)))
		}
		return w.Flush()
	},
}

var rawRSSICmd = &cobra.Command{
	Use:   "raw-rssi <mac>",
	Short: "Show chronological raw RSSI readings with a direction classification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		surf, closeFn, err := openSurface()
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := surf.GetRawRSSI(context.Background(), args[0], queryLimit)
		if err != nil {
			return err
		}
		if queryFormat == "json" {
			return writeJSON(res)
		}

		w := newTableWriter()
		fmt.Fprintf(w, "direction\t%s\n\n", res.Direction)
		fmt.Fprintln(w, "TIMESTAMP\tRSSI")
		for _, r := range res.Readings {
			fmt.Fprintf(w, "%d\t%s\n", r.TimestampMs, colorRSSI(int(r.RSSI)))
		}
		return w.Flush()
	},
}

var rssiTrendCmd = &cobra.Command{
	Use:   "rssi-trend <mac>",
	Short: "Show RSSI trend from persisted telemetry snapshots, one point per snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		surf, closeFn, err := openSurface()
		if err != nil {
			return err
		}
		defer closeFn()

		points, err := surf.GetRSSITrend(context.Background(), args[0], queryHours)
		if err != nil {
			return err
		}
		if queryFormat == "json" {
			return writeJSON(points)
		}

		w := newTableWriter()
		fmt.Fprintln(w, "TIMESTAMP\tAVG RSSI\tPACKETS")
		for _, p := range points {
			fmt.Fprintf(w, "%d\t%.1f dBm\t%d\n", p.TimestampMs, p.AvgRSSI, p.PacketCount)
		}
		return w.Flush()
	},
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Show the current in-memory telemetry snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		surf, closeFn, err := openSurface()
		if err != nil {
			return err
		}
		defer closeFn()

		snap := surf.GetTelemetry(context.Background())
		if queryFormat == "json" {
			return writeJSON(snap)
		}
		fmt.Printf("snapshot at %s, %d devices tracked, %d packets total\n",
			snap.Timestamp.Format("2006-01-02 15:04:05"), snap.TotalDevices, snap.TotalPackets)
		return nil
	},
}

var trendStatesCmd = &cobra.Command{
	Use:   "trend-states",
	Short: "Show every device's live approach/leaving/stable classification",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		surf, closeFn, err := openSurface()
		if err != nil {
			return err
		}
		defer closeFn()

		all := surf.GetAllTrendStates(context.Background())
		if queryFormat == "json" {
			return writeJSON(all)
		}

		w := newTableWriter()
		fmt.Fprintf(w, "approaching=%d leaving=%d stable=%d unknown=%d\n\n",
			all.Summary.Approaching, all.Summary.Leaving, all.Summary.Stable, all.Summary.Unknown)
		fmt.Fprintln(w, "MAC\tTREND\tRSSI\tCONFIDENCE")
		for mac, snap := range all.PerDevice {
			fmt.Fprintf(w, "%s\t%s\t%.1f dBm\t%.2f\n", mac, colorTrend(string(snap.Trend)), snap.RSSI, snap.Confidence)
		}
		return w.Flush()
	},
}
