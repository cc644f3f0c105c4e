package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeviceKey is the registry's opaque row identifier. The registry emits it as a
// JSON number; strings are accepted too.
type DeviceKey string

func (k *DeviceKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*k = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = DeviceKey(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	*k = DeviceKey(n.String())
	return nil
}

// Device is a monitored hive as listed by the registry. DeviceID is the stable
// external key; ID only distinguishes list entries.
type Device struct {
	ID       DeviceKey `json:"id"`
	DeviceID string    `json:"device_id"`
	Name     *string   `json:"name,omitempty"`
	Location *string   `json:"location,omitempty"`
}

// DisplayName falls back to the device id when the hive has no name.
func (d Device) DisplayName() string {
	if d.Name != nil && strings.TrimSpace(*d.Name) != "" {
		return *d.Name
	}
	return d.DeviceID
}

func (d Device) DisplayLocation() string {
	if d.Location != nil && strings.TrimSpace(*d.Location) != "" {
		return *d.Location
	}
	return "Unknown location"
}

// Reading is one timestamped sensor sample. Sensors drop out independently, so
// every measurement is optional.
type Reading struct {
	Time        time.Time `json:"time"`
	DeviceID    string    `json:"device_id,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Weight      *float64  `json:"weight,omitempty"`
	SoundLevel  *float64  `json:"sound_level,omitempty"`
}

type wireReading struct {
	Time        string   `json:"time"`
	Timestamp   string   `json:"timestamp"`
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Weight      *float64 `json:"weight"`
	SoundLevel  *float64 `json:"sound_level"`
}

// UnmarshalJSON accepts both the API shape ("time") and the firmware shape
// ("timestamp").
func (r *Reading) UnmarshalJSON(data []byte) error {
	var wire wireReading
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	raw := wire.Time
	if raw == "" {
		raw = wire.Timestamp
	}
	var ts time.Time
	if raw != "" {
		parsed, err := ParseTime(raw)
		if err != nil {
			return err
		}
		ts = parsed
	}

	*r = Reading{
		Time:        ts,
		DeviceID:    wire.DeviceID,
		Temperature: wire.Temperature,
		Humidity:    wire.Humidity,
		Weight:      wire.Weight,
		SoundLevel:  wire.SoundLevel,
	}
	return nil
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime parses RFC 3339 timestamps and the zone-less ISO 8601 form Python
// emits for naive datetimes. Zone-less values are taken as UTC.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unsupported format", value)
}
