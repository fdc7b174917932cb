package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "observatoryd",
	Short: "BLE advertising observatory daemon",
	Long: `observatoryd captures, parses, persists and analyzes Bluetooth
Low Energy advertising traffic:

- Capture raw advertisements from one or more adapters (or replay a
  previously exported PCAP file)
- Parse advertising-data structures and recognize vendor protocols
- Persist devices, services and frames to a local store
- Track real-time RSSI trend/motion and historical behavior patterns
- Serve a read-only query surface for presentation layers`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(queryCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}
