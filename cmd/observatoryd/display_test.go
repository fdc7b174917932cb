package main

import (
	"strings"
	"testing"
)

func TestColorRSSIThresholds(t *testing.T) {
	cases := []struct {
		rssi int
		want string
	}{
		{-40, "-40 dBm"},
		{-60, "-60 dBm"},
		{-75, "-75 dBm"},
		{-90, "-90 dBm"},
		{-100, "-100 dBm"},
	}
	for _, c := range cases {
		if got := colorRSSI(c.rssi); !strings.Contains(got, c.want) {
			t.Errorf("colorRSSI(%d) = %q, want it to contain %q", c.rssi, got, c.want)
		}
	}
}

func TestColorTrendKnownAndUnknownLabels(t *testing.T) {
	for _, trend := range []string{"Approaching", "Leaving", "Stable", ""} {
		if got := colorTrend(trend); !strings.Contains(got, trend) {
			t.Errorf("colorTrend(%q) = %q, lost the label", trend, got)
		}
	}
}

func TestTruncateShortensLongStrings(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate should not touch strings within the limit, got %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "ab..." {
		t.Errorf("truncate(\"abcdefghij\", 5) = %q, want \"ab...\"", got)
	}
}
