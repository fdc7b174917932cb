package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

func newTableWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// colorRSSI highlights strong/weak signal the way a human glancing at
// a terminal would expect: green when nearby, red when faint.
func colorRSSI(rssi int) string {
	text := fmt.Sprintf("%d dBm", rssi)
	switch {
	case rssi >= -60:
		return color.New(color.FgGreen).Sprint(text)
	case rssi <= -90:
		return color.New(color.FgRed).Sprint(text)
	default:
		return color.New(color.FgYellow).Sprint(text)
	}
}

func colorTrend(trend string) string {
	switch trend {
	case "Approaching":
		return color.New(color.FgGreen).Sprint(trend)
	case "Leaving":
		return color.New(color.FgRed).Sprint(trend)
	default:
		return color.New(color.FgCyan).Sprint(trend)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printRule(w io.Writer, width int) {
	fmt.Fprintln(w, strings.Repeat("-", width))
}
