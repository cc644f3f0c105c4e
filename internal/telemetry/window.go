package telemetry

import (
	"fmt"
	"sync"
)

// WindowCapacity is the number of readings kept for the selected hive.
const WindowCapacity = 50

// Window is a bounded FIFO of readings in ascending time order. Appending past
// capacity evicts the oldest readings.
//
// Safe for concurrent use: presentation reads may run while readings arrive.
type Window struct {
	mu       sync.RWMutex
	readings []Reading
	capacity int
	evicted  uint64
}

// NewWindow creates a Window holding at most capacity readings. The capacity
// must be positive.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		panic(fmt.Sprintf("telemetry: window capacity must be positive, got %d", capacity))
	}
	return &Window{
		readings: make([]Reading, 0, capacity),
		capacity: capacity,
	}
}

// Reset replaces the contents wholesale. When initial is longer than the
// capacity only its newest readings are kept.
func (w *Window) Reset(initial []Reading) {
	if len(initial) > w.capacity {
		initial = initial[len(initial)-w.capacity:]
	}
	next := make([]Reading, len(initial), w.capacity)
	copy(next, initial)

	w.mu.Lock()
	w.readings = next
	w.mu.Unlock()
}

// Append adds a reading at the tail and evicts from the head until the window
// is back within capacity.
func (w *Window) Append(r Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.readings = append(w.readings, r)
	if over := len(w.readings) - w.capacity; over > 0 {
		// Shift in place so the backing array doesn't grow without bound.
		n := copy(w.readings, w.readings[over:])
		clear(w.readings[n:])
		w.readings = w.readings[:n]
		w.evicted += uint64(over)
	}
}

// Latest returns the newest reading, if any.
func (w *Window) Latest() (Reading, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.readings) == 0 {
		return Reading{}, false
	}
	return w.readings[len(w.readings)-1], true
}

// Snapshot returns a copy of the readings, oldest first.
func (w *Window) Snapshot() []Reading {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.readings)
}

func (w *Window) Cap() int {
	return w.capacity
}

// Evicted counts readings dropped by Append since the window was created.
func (w *Window) Evicted() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.evicted
}
