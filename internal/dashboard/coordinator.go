package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joshp123/hivewatch/internal/livefeed"
	"github.com/joshp123/hivewatch/internal/telemetry"
)

var (
	// ErrUnknownDevice is returned when selecting a device id that is not in
	// the current device list.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrClosed is returned by operations on a closed Coordinator.
	ErrClosed = errors.New("dashboard closed")
)

// Registry lists the monitored hives.
type Registry interface {
	ListDevices(ctx context.Context) ([]telemetry.Device, error)
}

// HistoryLoader fetches the most recent readings of a hive, oldest first.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, deviceID string, limit int) ([]telemetry.Reading, error)
}

// Options configures a Coordinator.
type Options struct {
	Logger *slog.Logger
	// OnStatus is called with every status change while the coordinator's lock
	// is held. It must not call back into the Coordinator.
	OnStatus func(livefeed.Status)
	// HistoryTimeout bounds a single history fetch. Zero means no bound.
	HistoryTimeout time.Duration
}

// Stats extends the live feed counters with history outcomes.
type Stats struct {
	Feed             livefeed.Stats
	HistoryLoads     uint64
	HistoryFailures  uint64
	HistoryDiscarded uint64
	Evicted          uint64
}

// Coordinator owns the current selection: which hive is shown, its telemetry
// window and its live feed. Every event that touches the selection is handled
// under mu, one at a time.
type Coordinator struct {
	registry       Registry
	history        HistoryLoader
	logger         *slog.Logger
	onStatus       func(livefeed.Status)
	historyTimeout time.Duration
	window         *telemetry.Window

	mu            sync.Mutex
	conn          *livefeed.Conn
	devices       []telemetry.Device
	selected      *telemetry.Device
	epoch         uint64
	pending       bool
	cancelHistory context.CancelFunc
	// early holds live readings that arrived before the current epoch's
	// history, oldest first.
	early  []telemetry.Reading
	status livefeed.Status
	closed bool
	stats  Stats

	wg sync.WaitGroup
}

func New(registry Registry, history HistoryLoader, transport livefeed.Transport, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		registry:       registry,
		history:        history,
		logger:         logger,
		onStatus:       opts.OnStatus,
		historyTimeout: opts.HistoryTimeout,
		window:         telemetry.NewWindow(telemetry.WindowCapacity),
		status:         livefeed.StatusOffline,
	}
	c.conn = livefeed.NewConn(transport, c.handleFeedEvent, logger.With("component", "livefeed"))
	return c
}

// RefreshDevices reloads the device list. When nothing is selected yet the
// first device is selected. On failure the previous list and selection stay.
func (c *Coordinator) RefreshDevices(ctx context.Context) ([]telemetry.Device, error) {
	devices, err := c.registry.ListDevices(ctx)
	if err != nil {
		c.logger.Warn("device refresh failed", "error", err)
		return nil, fmt.Errorf("refresh devices: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	c.devices = slices.Clone(devices)
	c.logger.Info("devices refreshed", "count", len(devices))
	if c.selected == nil && len(devices) > 0 {
		c.selectLocked(devices[0])
	}
	return slices.Clone(devices), nil
}

// SelectDevice makes d the current selection. Selecting the current device
// again restarts its history and live feed.
func (c *Coordinator) SelectDevice(d telemetry.Device) error {
	if d.DeviceID == "" {
		return fmt.Errorf("select device: device id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.selectLocked(d)
	return nil
}

// SelectDeviceByID selects a device from the current list by its device id.
func (c *Coordinator) SelectDeviceByID(deviceID string) (telemetry.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return telemetry.Device{}, ErrClosed
	}
	idx := slices.IndexFunc(c.devices, func(d telemetry.Device) bool { return d.DeviceID == deviceID })
	if idx < 0 {
		return telemetry.Device{}, fmt.Errorf("select %q: %w", deviceID, ErrUnknownDevice)
	}
	d := c.devices[idx]
	c.selectLocked(d)
	return d, nil
}

func (c *Coordinator) selectLocked(d telemetry.Device) {
	c.conn.Close()
	if c.cancelHistory != nil {
		c.cancelHistory()
		c.cancelHistory = nil
	}

	c.window.Reset(nil)
	c.epoch++
	c.early = nil
	c.pending = true
	selected := d
	c.selected = &selected

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.historyTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.historyTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.cancelHistory = cancel

	epoch := c.epoch
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		readings, err := c.history.LoadHistory(ctx, d.DeviceID, telemetry.WindowCapacity)
		c.applyHistory(epoch, d.DeviceID, readings, err)
	}()

	c.conn.Open(d.DeviceID)
	c.publishStatusLocked()
	c.logger.Info("device selected", "device_id", d.DeviceID, "epoch", epoch)
}

func (c *Coordinator) applyHistory(epoch uint64, deviceID string, readings []telemetry.Reading, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || epoch != c.epoch {
		c.stats.HistoryDiscarded++
		c.logger.Debug("discarding superseded history", "device_id", deviceID, "epoch", epoch)
		return
	}

	c.pending = false
	if c.cancelHistory != nil {
		c.cancelHistory()
		c.cancelHistory = nil
	}
	early := c.early
	c.early = nil

	if err != nil {
		c.stats.HistoryFailures++
		c.logger.Warn("history load failed", "device_id", deviceID, "error", err)
		return
	}

	c.stats.HistoryLoads++
	c.window.Reset(mergeHistory(readings, early))
	c.logger.Info("history loaded", "device_id", deviceID, "readings", len(readings), "live", len(early))
}

// mergeHistory adds the live readings whose time is not already in the
// history and keeps the result ordered by time. A live reading stamped with
// the local receive time may sort before the newest history reading.
func mergeHistory(history, live []telemetry.Reading) []telemetry.Reading {
	merged := make([]telemetry.Reading, 0, len(history)+len(live))
	merged = append(merged, history...)
	if len(history) == 0 {
		return append(merged, live...)
	}
	seen := make(map[int64]struct{}, len(history))
	for _, r := range history {
		seen[r.Time.UnixNano()] = struct{}{}
	}
	newest := history[len(history)-1].Time
	ordered := true
	for _, r := range live {
		if _, ok := seen[r.Time.UnixNano()]; ok {
			continue
		}
		if r.Time.Before(newest) {
			ordered = false
		}
		merged = append(merged, r)
	}
	if !ordered {
		slices.SortStableFunc(merged, func(a, b telemetry.Reading) int {
			return a.Time.Compare(b.Time)
		})
	}
	return merged
}

// handleFeedEvent is the dispatch target for the live feed's transport
// goroutines.
func (c *Coordinator) handleFeedEvent(ev livefeed.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reading, ok := c.conn.Handle(ev)
	if ok {
		c.window.Append(reading)
		if c.pending {
			c.early = append(c.early, reading)
			if extra := len(c.early) - telemetry.WindowCapacity; extra > 0 {
				c.early = slices.Delete(c.early, 0, extra)
			}
		}
	}
	c.publishStatusLocked()
}

func (c *Coordinator) publishStatusLocked() {
	status := livefeed.StatusOf(c.conn.State())
	if status == c.status {
		return
	}
	c.status = status
	c.logger.Info("feed status changed", "status", string(status))
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

// Devices returns the last fetched device list.
func (c *Coordinator) Devices() []telemetry.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.devices)
}

func (c *Coordinator) Selection() (telemetry.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return telemetry.Device{}, false
	}
	return *c.selected, true
}

// Snapshot returns the selected hive's window, oldest first.
func (c *Coordinator) Snapshot() []telemetry.Reading {
	return c.window.Snapshot()
}

// View is the selection, its feed status and its window as of one instant.
type View struct {
	Device   *telemetry.Device
	Status   livefeed.Status
	State    livefeed.State
	Readings []telemetry.Reading
}

// Latest returns the newest reading of the view.
func (v View) Latest() (telemetry.Reading, bool) {
	if len(v.Readings) == 0 {
		return telemetry.Reading{}, false
	}
	return v.Readings[len(v.Readings)-1], true
}

// View reads the selection, status and window under one lock.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := View{
		Status:   c.status,
		State:    c.conn.State(),
		Readings: c.window.Snapshot(),
	}
	if c.selected != nil {
		device := *c.selected
		view.Device = &device
	}
	return view
}

func (c *Coordinator) Latest() (telemetry.Reading, bool) {
	return c.window.Latest()
}

func (c *Coordinator) Status() livefeed.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) State() livefeed.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.State()
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Feed = c.conn.Stats()
	stats.Evicted = c.window.Evicted()
	return stats
}

// Close stops the live feed and any history fetch and waits for their
// goroutines. It is safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.conn.Close()
	if c.cancelHistory != nil {
		c.cancelHistory()
		c.cancelHistory = nil
	}
	c.pending = false
	c.early = nil
	c.publishStatusLocked()
	c.mu.Unlock()

	c.conn.Wait()
	c.wg.Wait()
	c.logger.Info("dashboard closed")
}
