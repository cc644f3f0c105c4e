package main

import (
	"strings"
	"testing"

	"github.com/joshp123/hivewatch/internal/telemetry"
)

func TestResolveDevice(t *testing.T) {
	orchard := "Orchard Hive"
	meadow := "Meadow"
	devices := []telemetry.Device{
		{ID: "1", DeviceID: "hive-01", Name: &orchard},
		{ID: "2", DeviceID: "hive-02", Name: &meadow},
		{ID: "3", DeviceID: "meadow"},
	}

	cases := map[string]string{
		"hive-01":      "hive-01",
		"orchard hive": "hive-01",
		"Orchard-Hive": "hive-01",
		"HIVE_02":      "hive-02",
		"meadow":       "meadow",
	}
	for input, want := range cases {
		got, err := resolveDevice(input, devices)
		if err != nil {
			t.Fatalf("resolve %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("resolve %q: expected %s, got %s", input, want, got)
		}
	}

	if _, err := resolveDevice("garden", devices); err == nil || !strings.Contains(err.Error(), "hive-01, hive-02, meadow") {
		t.Fatalf("expected not found error listing hives, got %v", err)
	}
	if _, err := resolveDevice("Meadow", devices); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
}
