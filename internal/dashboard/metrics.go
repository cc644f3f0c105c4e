package dashboard

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/hivewatch/internal/livefeed"
)

// MetricsCollector exports the selected hive's feed and latest reading.
type MetricsCollector struct {
	coord *Coordinator
	// mu serializes Collect; the gauges are reset and refilled per scrape.
	mu sync.Mutex

	feedStatus      *prometheus.GaugeVec
	windowReadings  prometheus.Gauge
	lastReading     *prometheus.GaugeVec
	tempCelsius     *prometheus.GaugeVec
	humidityPercent *prometheus.GaugeVec
	weightKg        *prometheus.GaugeVec
	soundLevelDb    *prometheus.GaugeVec

	readings         *prometheus.Desc
	pings            *prometheus.Desc
	malformed        *prometheus.Desc
	feedErrors       *prometheus.Desc
	staleEvents      *prometheus.Desc
	evicted          *prometheus.Desc
	historyLoads     *prometheus.Desc
	historyFailures  *prometheus.Desc
	historyDiscarded *prometheus.Desc
}

func NewMetricsCollector(coord *Coordinator) *MetricsCollector {
	return &MetricsCollector{
		coord: coord,
		feedStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hivewatch_feed_status",
			Help: "Live feed status of the selected hive (1 for the current status)",
		}, []string{"device_id", "status"}),
		windowReadings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hivewatch_window_readings",
			Help: "Readings in the telemetry window",
		}),
		lastReading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hivewatch_last_reading_timestamp_seconds",
			Help: "Timestamp of the newest reading (epoch seconds)",
		}, []string{"device_id"}),
		tempCelsius: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hivewatch_temperature_celsius",
			Help: "Latest hive temperature (celsius)",
		}, []string{"device_id"}),
		humidityPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hivewatch_humidity_percent",
			Help: "Latest hive relative humidity (%)",
		}, []string{"device_id"}),
		weightKg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hivewatch_weight_kg",
			Help: "Latest hive weight (kg)",
		}, []string{"device_id"}),
		soundLevelDb: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hivewatch_sound_level_db",
			Help: "Latest hive sound level (dB)",
		}, []string{"device_id"}),
		readings:         counterDesc("hivewatch_feed_readings_total", "Live readings accepted"),
		pings:            counterDesc("hivewatch_feed_pings_total", "Liveness pings received"),
		malformed:        counterDesc("hivewatch_feed_malformed_total", "Live messages that could not be decoded"),
		feedErrors:       counterDesc("hivewatch_feed_errors_total", "Live feed transport errors"),
		staleEvents:      counterDesc("hivewatch_feed_stale_events_total", "Events dropped from superseded sessions"),
		evicted:          counterDesc("hivewatch_window_evicted_total", "Readings evicted from the telemetry window"),
		historyLoads:     counterDesc("hivewatch_history_loads_total", "History fetches applied"),
		historyFailures:  counterDesc("hivewatch_history_failures_total", "History fetches that failed"),
		historyDiscarded: counterDesc("hivewatch_history_discarded_total", "History results discarded after a selection change"),
	}
}

func counterDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(name, help, nil, nil)
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.feedStatus.Describe(ch)
	c.windowReadings.Describe(ch)
	c.lastReading.Describe(ch)
	c.tempCelsius.Describe(ch)
	c.humidityPercent.Describe(ch)
	c.weightKg.Describe(ch)
	c.soundLevelDb.Describe(ch)
	for _, desc := range c.counterDescs() {
		ch <- desc
	}
}

func (c *MetricsCollector) counterDescs() []*prometheus.Desc {
	return []*prometheus.Desc{
		c.readings, c.pings, c.malformed, c.feedErrors, c.staleEvents,
		c.evicted, c.historyLoads, c.historyFailures, c.historyDiscarded,
	}
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.coord == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	view := c.coord.View()
	deviceID := ""
	if view.Device != nil {
		deviceID = view.Device.DeviceID
	}
	c.feedStatus.Reset()
	for _, s := range []livefeed.Status{livefeed.StatusLive, livefeed.StatusError, livefeed.StatusOffline} {
		value := 0.0
		if s == view.Status {
			value = 1
		}
		c.feedStatus.WithLabelValues(deviceID, string(s)).Set(value)
	}

	// Series only ever describe the current selection's newest reading.
	c.lastReading.Reset()
	c.tempCelsius.Reset()
	c.humidityPercent.Reset()
	c.weightKg.Reset()
	c.soundLevelDb.Reset()
	c.windowReadings.Set(float64(len(view.Readings)))
	if latest, ok := view.Latest(); ok && deviceID != "" {
		c.lastReading.WithLabelValues(deviceID).Set(float64(latest.Time.Unix()))
		setGauge(c.tempCelsius, deviceID, latest.Temperature)
		setGauge(c.humidityPercent, deviceID, latest.Humidity)
		setGauge(c.weightKg, deviceID, latest.Weight)
		setGauge(c.soundLevelDb, deviceID, latest.SoundLevel)
	}

	c.feedStatus.Collect(ch)
	c.windowReadings.Collect(ch)
	c.lastReading.Collect(ch)
	c.tempCelsius.Collect(ch)
	c.humidityPercent.Collect(ch)
	c.weightKg.Collect(ch)
	c.soundLevelDb.Collect(ch)

	stats := c.coord.Stats()
	counter(ch, c.readings, stats.Feed.Readings)
	counter(ch, c.pings, stats.Feed.Pings)
	counter(ch, c.malformed, stats.Feed.Malformed)
	counter(ch, c.feedErrors, stats.Feed.Errors)
	counter(ch, c.staleEvents, stats.Feed.Stale)
	counter(ch, c.evicted, stats.Evicted)
	counter(ch, c.historyLoads, stats.HistoryLoads)
	counter(ch, c.historyFailures, stats.HistoryFailures)
	counter(ch, c.historyDiscarded, stats.HistoryDiscarded)
}

func counter(ch chan<- prometheus.Metric, desc *prometheus.Desc, value uint64) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
}

func setGauge(g *prometheus.GaugeVec, deviceID string, value *float64) {
	if value == nil {
		return
	}
	g.WithLabelValues(deviceID).Set(*value)
}
