package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joshp123/hivewatch/internal/telemetry"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_", "__", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

// resolveDevice matches input against device ids first, then display names.
func resolveDevice(input string, devices []telemetry.Device) (string, error) {
	for _, d := range devices {
		if d.DeviceID == input {
			return d.DeviceID, nil
		}
	}

	needle := normalizeName(input)
	var matches []string
	for _, d := range devices {
		if normalizeName(d.DeviceID) == needle || normalizeName(d.DisplayName()) == needle {
			matches = append(matches, d.DeviceID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		available := make([]string, 0, len(devices))
		for _, d := range devices {
			available = append(available, d.DeviceID)
		}
		sort.Strings(available)
		return "", fmt.Errorf("hive %q not found. Available: %s", input, strings.Join(available, ", "))
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("hive %q is ambiguous: %s", input, strings.Join(matches, ", "))
	}
}
