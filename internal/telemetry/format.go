package telemetry

import "strconv"

// NotAvailable is shown in place of a sensor value that was not reported.
const NotAvailable = "N/A"

// FormatValue renders a sensor value with one decimal followed by unit, or
// NotAvailable when the sensor did not report. A reported zero stays "0.0".
func FormatValue(value *float64, unit string) string {
	if value == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*value, 'f', 1, 64) + unit
}

// Metric is one labelled sensor value of a reading.
type Metric struct {
	Label string
	Unit  string
	Value *float64
}

// Metrics lists the sensor values of r in display order.
func (r Reading) Metrics() []Metric {
	return []Metric{
		{Label: "Temperature", Unit: "°C", Value: r.Temperature},
		{Label: "Humidity", Unit: "%", Value: r.Humidity},
		{Label: "Weight", Unit: " kg", Value: r.Weight},
		{Label: "Sound Level", Unit: " dB", Value: r.SoundLevel},
	}
}
